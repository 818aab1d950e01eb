package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	createAttempts  = 5
	confirmAttempts = 5
)

// Uploader stores challenge proof images and returns a URL clients can load.
type Uploader interface {
	Upload(ctx context.Context, gameID, playerID string, image []byte) (url string, err error)
	Remove(ctx context.Context, url string) error
}

// Manager runs every player-facing operation against a Store. Each
// operation is one atomic Store.Update, so nothing is visible to other
// players until the store has committed it.
type Manager struct {
	store    Store
	rules    *Rules
	uploader Uploader
	newCode  func() string
	backoff  func() backoff.BackOff
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithCodes sets the game code generator.
func WithCodes(newCode func() string) ManagerOption {
	return func(m *Manager) { m.newCode = newCode }
}

// WithConfirmBackOff sets the backoff used while confirming a new game is
// readable.
func WithConfirmBackOff(b func() backoff.BackOff) ManagerOption {
	return func(m *Manager) { m.backoff = b }
}

// NewManager returns a Manager. uploader may be nil, in which case proof
// images are refused.
func NewManager(store Store, rules *Rules, uploader Uploader, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		rules:    rules,
		uploader: uploader,
		newCode:  NewGameCode,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rules returns the rule set the manager applies.
func (m *Manager) Rules() *Rules {
	return m.rules
}

func (m *Manager) update(ctx context.Context, gameID string, mutate func(*Game) error) (Game, error) {
	g, err := m.store.Update(ctx, gameID, mutate)
	if err != nil {
		return Game{}, persistenceError(err)
	}
	return g, nil
}

func persistenceError(err error) error {
	if KindOf(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return wrapError(KindPersistence, "could not save game", err)
}

// Get returns the current state of a game.
func (m *Manager) Get(ctx context.Context, gameID string) (Game, error) {
	g, err := m.store.Get(ctx, gameID)
	if err != nil {
		return Game{}, persistenceError(err)
	}
	return g, nil
}

// Subscribe forwards to the store.
func (m *Manager) Subscribe(ctx context.Context, gameID string, fn func(Event)) (func(), error) {
	return m.store.Subscribe(ctx, gameID, fn)
}

// CreateGame creates a draft game hosted by hostName and returns it with the
// host player. The game is only returned once the store serves it back,
// retrying with exponential backoff to ride out replication lag.
func (m *Manager) CreateGame(ctx context.Context, hostName string, avatar Avatar) (Game, Player, error) {
	var g Game
	created := false
	for range createAttempts {
		var err error
		g, err = m.rules.NewGame(m.newCode(), hostName, avatar)
		if err != nil {
			return Game{}, Player{}, err
		}
		err = m.store.Create(ctx, g)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Game{}, Player{}, wrapError(KindCreation, "could not create game", err)
		}
		created = true
		break
	}
	if !created {
		return Game{}, Player{}, newError(KindCreation, "could not find a free game code")
	}

	confirmed, err := backoff.Retry(ctx, func() (Game, error) {
		return m.store.Get(ctx, g.ID)
	}, backoff.WithBackOff(m.backoff()), backoff.WithMaxTries(confirmAttempts))
	if err != nil {
		return Game{}, Player{}, wrapError(KindCreation, "could not create game", err)
	}
	host := confirmed.Host()
	if host == nil {
		return Game{}, Player{}, newError(KindCreation, "created game has no host")
	}
	return confirmed, *host, nil
}

// JoinGame adds a player to a draft game.
func (m *Manager) JoinGame(ctx context.Context, gameID, playerName string, avatar Avatar) (Game, Player, error) {
	var joined Player
	g, err := m.update(ctx, gameID, func(g *Game) error {
		var err error
		joined, err = m.rules.Join(g, playerName, avatar)
		return err
	})
	if err != nil {
		return Game{}, Player{}, err
	}
	return g, joined, nil
}

// SelectPack sets the pack for a draft game. Host only.
func (m *Manager) SelectPack(ctx context.Context, gameID, playerID, packID string) (Game, error) {
	return m.update(ctx, gameID, func(g *Game) error {
		return m.rules.SelectPack(g, playerID, packID)
	})
}

// StartGame deals tasks or challenges. Host only.
func (m *Manager) StartGame(ctx context.Context, gameID, playerID string) (Game, error) {
	return m.update(ctx, gameID, func(g *Game) error {
		return m.rules.Start(g, playerID)
	})
}

// EndGame ends the game. Host only.
func (m *Manager) EndGame(ctx context.Context, gameID, playerID string) (Game, error) {
	return m.update(ctx, gameID, func(g *Game) error {
		return m.rules.End(g, playerID)
	})
}

var errDeleteGame = errors.New("delete game")

// LeaveGame removes a player. deleted reports that the whole game was
// removed, which happens when the host leaves a draft or the last player
// leaves.
func (m *Manager) LeaveGame(ctx context.Context, gameID, playerID string) (g Game, deleted bool, err error) {
	g, err = m.update(ctx, gameID, func(g *Game) error {
		del, err := m.rules.Leave(g, playerID)
		if err != nil {
			return err
		}
		if del {
			return errDeleteGame
		}
		return nil
	})
	if errors.Is(err, errDeleteGame) {
		if err := m.store.Delete(ctx, gameID); err != nil {
			return Game{}, false, persistenceError(err)
		}
		return Game{}, true, nil
	}
	if err != nil {
		return Game{}, false, err
	}
	return g, false, nil
}

// SwapTask replaces a pending task, spending one swap.
func (m *Manager) SwapTask(ctx context.Context, gameID, playerID, taskID string) (Game, error) {
	return m.update(ctx, gameID, func(g *Game) error {
		return m.rules.Swap(g, playerID, taskID)
	})
}

// LockIn sets a player's readiness flag.
func (m *Manager) LockIn(ctx context.Context, gameID, playerID string, locked bool) (Game, error) {
	return m.update(ctx, gameID, func(g *Game) error {
		return m.rules.LockIn(g, playerID, locked)
	})
}

// ClaimGotcha resolves one of the player's stealth tasks.
func (m *Manager) ClaimGotcha(ctx context.Context, gameID, playerID, taskID string, outcome Outcome, targetID string) (Game, error) {
	return m.update(ctx, gameID, func(g *Game) error {
		return m.rules.ClaimGotcha(g, playerID, taskID, outcome, targetID)
	})
}

// CompleteChallenge claims a race-mode challenge. A proof image, when given,
// is uploaded before the claim is written; if the write then fails the
// upload is removed again.
func (m *Manager) CompleteChallenge(ctx context.Context, gameID, playerID, challengeID string, proof []byte) (Game, ChallengeCompletion, error) {
	current, err := m.Get(ctx, gameID)
	if err != nil {
		return Game{}, ChallengeCompletion{}, err
	}
	if err := m.rules.CheckChallenge(&current, playerID, challengeID, len(proof) > 0); err != nil {
		return Game{}, ChallengeCompletion{}, err
	}

	proofURL := ""
	if len(proof) > 0 {
		if m.uploader == nil {
			return Game{}, ChallengeCompletion{}, newError(KindPrecondition, "photo uploads are disabled")
		}
		proofURL, err = m.uploader.Upload(ctx, gameID, playerID, proof)
		if err != nil {
			return Game{}, ChallengeCompletion{}, fmt.Errorf("upload proof: %w", err)
		}
	}

	var completion ChallengeCompletion
	g, err := m.update(ctx, gameID, func(g *Game) error {
		var err error
		completion, err = m.rules.CompleteChallenge(g, playerID, challengeID, proofURL)
		return err
	})
	if err != nil {
		if proofURL != "" {
			_ = m.uploader.Remove(context.WithoutCancel(ctx), proofURL)
		}
		return Game{}, ChallengeCompletion{}, err
	}
	return g, completion, nil
}

// OpenDispute contests a gotcha made against disputerID.
func (m *Manager) OpenDispute(ctx context.Context, gameID, disputerID, taskID string) (Game, Dispute, error) {
	var d Dispute
	g, err := m.update(ctx, gameID, func(g *Game) error {
		var err error
		d, err = m.rules.OpenDispute(g, disputerID, taskID)
		return err
	})
	if err != nil {
		return Game{}, Dispute{}, err
	}
	return g, d, nil
}

// CastVote records a ballot on a dispute.
func (m *Manager) CastVote(ctx context.Context, gameID, voterID, disputeID string, uphold bool) (Game, error) {
	return m.update(ctx, gameID, func(g *Game) error {
		return m.rules.CastVote(g, voterID, disputeID, uphold)
	})
}

var errUnchanged = errors.New("unchanged")

// ExpireDisputes resolves overdue disputes in every live game and returns
// how many games changed.
func (m *Manager) ExpireDisputes(ctx context.Context) (int, error) {
	live, err := m.store.List(ctx, StatusLive)
	if err != nil {
		return 0, persistenceError(err)
	}
	now := m.rules.now()
	changed := 0
	for _, g := range live {
		if next, ok := g.NextDeadline(); !ok || now.Before(next) {
			continue
		}
		_, err := m.store.Update(ctx, g.ID, func(g *Game) error {
			if !m.rules.ExpireDisputes(g) {
				return errUnchanged
			}
			return nil
		})
		switch {
		case err == nil:
			changed++
		case errors.Is(err, errUnchanged), errors.Is(err, ErrNotFound):
		default:
			return changed, persistenceError(err)
		}
	}
	return changed, nil
}

// PruneEnded deletes games that ended before cutoff and returns their ids.
func (m *Manager) PruneEnded(ctx context.Context, cutoff time.Time) ([]string, error) {
	ended, err := m.store.List(ctx, StatusEnded)
	if err != nil {
		return nil, persistenceError(err)
	}
	var removed []string
	for _, g := range ended {
		if g.EndedAt == nil || !g.EndedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, g.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, persistenceError(err)
		}
		removed = append(removed, g.ID)
	}
	return removed, nil
}

// Resume returns the game a returning player should be put back into. An
// abandoned draft (no pack chosen yet) is not resumed.
func (m *Manager) Resume(ctx context.Context, gameID, playerID string) (Game, error) {
	g, err := m.Get(ctx, gameID)
	if err != nil {
		return Game{}, err
	}
	if g.Player(playerID) == nil {
		return Game{}, newError(KindNotFound, "you are no longer in this game")
	}
	if g.Status == StatusDraft && g.Settings.SelectedPack == "" {
		return Game{}, newError(KindNotFound, "that game was never set up")
	}
	return g, nil
}
