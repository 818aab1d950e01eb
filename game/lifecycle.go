package game

import (
	"math/rand/v2"
	"slices"
)

// NewGame returns a draft game whose only player is the host.
func (r *Rules) NewGame(id, hostName string, avatar Avatar) (Game, error) {
	name, err := cleanName(hostName)
	if err != nil {
		return Game{}, err
	}

	host := r.newPlayer(id, name, avatar, true)
	g := Game{
		ID:        id,
		CreatedBy: host.ID,
		CreatedAt: r.now(),
		HostID:    host.ID,
		Players:   []Player{host},
		Settings:  r.defaults.settings(),
	}
	g.setStatus(StatusDraft)
	return g, nil
}

// Join adds a player to a draft game.
func (r *Rules) Join(g *Game, playerName string, avatar Avatar) (Player, error) {
	if g.Status != StatusDraft {
		return Player{}, newError(KindNotFound, "no open game with code %s", g.ID)
	}
	name, err := cleanName(playerName)
	if err != nil {
		return Player{}, err
	}
	for _, p := range g.Players {
		if sameName(p.Name, name) {
			return Player{}, newError(KindDuplicateName, "someone is already called %s", p.Name)
		}
	}
	if g.Settings.MaxPlayers > 0 && len(g.Players) >= g.Settings.MaxPlayers {
		return Player{}, ErrGameFull
	}

	p := r.newPlayer(g.ID, name, avatar, false)
	g.Players = append(g.Players, p)
	return p, nil
}

// SelectPack records the host's pack choice and derives the score targets
// for the current player count.
func (r *Rules) SelectPack(g *Game, playerID, packID string) error {
	if err := requireNotEnded(g); err != nil {
		return err
	}
	if _, err := requireHost(g, playerID); err != nil {
		return err
	}
	if g.Status != StatusDraft {
		return newError(KindPrecondition, "the pack can only be changed before the game starts")
	}
	pack, ok := r.catalog.Pack(packID)
	if !ok {
		return newError(KindNotFound, "unknown pack %q", packID)
	}

	g.PackID = pack.ID
	g.Mode = pack.Mode
	g.GameType = pack.Type
	g.Settings.SelectedPack = pack.ID
	r.applyTargets(g)
	return nil
}

func (r *Rules) applyTargets(g *Game) {
	n := len(g.Players)
	g.Settings.TargetScore = r.defaults.TargetScore(n)
	if g.Mode == ModeRace {
		g.Settings.WinThreshold = r.defaults.WinThreshold(n)
		g.Settings.GoldPoints = r.defaults.GoldPoints
		g.Settings.SilverPoints = r.defaults.SilverPoints
	} else {
		g.Settings.WinThreshold = 0
		g.Settings.GoldPoints = 0
		g.Settings.SilverPoints = 0
	}
}

// Start deals tasks or challenges and moves the game to live. Targets are
// recomputed so players who joined after the pack was chosen count.
func (r *Rules) Start(g *Game, playerID string) error {
	if err := requireNotEnded(g); err != nil {
		return err
	}
	if _, err := requireHost(g, playerID); err != nil {
		return err
	}
	if g.Status != StatusDraft {
		return newError(KindPrecondition, "the game has already started")
	}
	if g.PackID == "" {
		return newError(KindPrecondition, "choose a pack before starting")
	}
	pack, ok := r.catalog.Pack(g.PackID)
	if !ok {
		return newError(KindNotFound, "unknown pack %q", g.PackID)
	}

	r.applyTargets(g)
	for i := range g.Players {
		g.Players[i].LockedIn = false
	}

	switch pack.Mode {
	case ModeRace:
		var drawn []Challenge
		r.draw(func(rng *rand.Rand) {
			drawn = SelectRandom(rng, pack.Challenges, r.defaults.ChallengeCount)
		})
		g.Challenges = drawn
		g.ChallengeCompletions = nil
		for i := range g.Players {
			g.Players[i].ChallengeScore = 0
			g.Players[i].CompletedChallenges = nil
		}
	default:
		count := r.defaults.TasksPerPlayer(len(g.Players))
		for i := range g.Players {
			p := &g.Players[i]
			var hand []Task
			r.draw(func(rng *rand.Rand) {
				hand = dealTasks(rng, pack.Tasks, count)
			})
			p.Tasks = make([]TaskInstance, 0, len(hand))
			for _, t := range hand {
				p.Tasks = append(p.Tasks, TaskInstance{
					ID:        r.newID(),
					GameID:    g.ID,
					PlayerID:  p.ID,
					CatalogID: t.ID,
					Text:      t.Text,
					Hint:      t.Hint,
					Bonus:     t.Bonus,
					Status:    TaskPending,
				})
			}
		}
	}

	g.Settings.TasksLoaded = true
	g.setStatus(StatusLive)
	return nil
}

// End lets the host finish the game. The current leader is recorded as the
// winner. Ending an ended game is a no-op.
func (r *Rules) End(g *Game, playerID string) error {
	if _, err := requireHost(g, playerID); err != nil {
		return err
	}
	if g.Status == StatusEnded {
		return nil
	}
	r.settleDisputes(g)
	winner := ""
	if board := Leaderboard(g); len(board) > 0 {
		winner = board[0].PlayerID
	}
	r.finish(g, winner)
	return nil
}

func (r *Rules) finish(g *Game, winnerID string) {
	r.settleDisputes(g)
	now := r.now()
	g.WinnerID = winnerID
	g.EndedAt = &now
	g.setStatus(StatusEnded)
}

// Leave removes a player. It reports deleteGame when the whole game should
// be removed: the host left a draft, or nobody is left. If the host leaves a
// started game the longest-standing remaining player takes over.
func (r *Rules) Leave(g *Game, playerID string) (deleteGame bool, err error) {
	p, err := requirePlayer(g, playerID)
	if err != nil {
		return false, err
	}
	if p.IsHost && g.Status == StatusDraft {
		return true, nil
	}

	wasHost := p.IsHost
	g.Players = slices.DeleteFunc(g.Players, func(p Player) bool { return p.ID == playerID })
	if len(g.Players) == 0 {
		return true, nil
	}
	if wasHost {
		g.Players[0].IsHost = true
		g.HostID = g.Players[0].ID
	}
	for i := range g.Disputes {
		d := &g.Disputes[i]
		if d.Status != DisputeResolved && len(d.Votes) > 0 && pendingVoters(g, d) == 0 {
			r.resolve(g, d, tally(d, g.Settings.TieBreak))
		}
	}
	return false, nil
}

// Swap replaces the content of a pending task with a fresh draw from the
// pack. The task keeps its id. Nothing changes when the swap is refused.
func (r *Rules) Swap(g *Game, playerID, taskID string) error {
	if err := requireNotEnded(g); err != nil {
		return err
	}
	p, err := requirePlayer(g, playerID)
	if err != nil {
		return err
	}
	task := p.Task(taskID)
	if task == nil {
		return newError(KindNotFound, "task not found")
	}
	if task.Status != TaskPending {
		return newError(KindPrecondition, "only pending tasks can be swapped")
	}
	if p.LockedIn {
		return newError(KindPrecondition, "you are locked in")
	}
	if p.SwapsLeft <= 0 {
		return newError(KindPrecondition, "no swaps left")
	}
	pack, ok := r.catalog.Pack(g.PackID)
	if !ok {
		return newError(KindNotFound, "unknown pack %q", g.PackID)
	}

	exclude := make(map[string]bool, len(p.Tasks))
	avoidBonus := false
	for _, t := range p.Tasks {
		exclude[t.CatalogID] = true
		if t.Bonus && t.ID != task.ID {
			avoidBonus = true
		}
	}

	var next Task
	r.draw(func(rng *rand.Rand) {
		next, ok = SelectReplacement(rng, pack.Tasks, exclude, avoidBonus)
	})
	if !ok {
		return newError(KindPrecondition, "no replacement tasks left")
	}

	task.CatalogID = next.ID
	task.Text = next.Text
	task.Hint = next.Hint
	task.Bonus = next.Bonus
	p.SwapsLeft--
	return nil
}

// LockIn sets a player's readiness flag. A locked-in player can no longer
// swap tasks. Starting the game clears every flag.
func (r *Rules) LockIn(g *Game, playerID string, locked bool) error {
	if err := requireNotEnded(g); err != nil {
		return err
	}
	p, err := requirePlayer(g, playerID)
	if err != nil {
		return err
	}
	p.LockedIn = locked
	return nil
}
