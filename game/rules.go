package game

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

const maxNameLength = 24

// Rules applies lifecycle, scoring and dispute transitions to a Game held in
// memory. It is safe for concurrent use; the only shared state is the PRNG.
type Rules struct {
	defaults Defaults
	catalog  Catalog
	now      func() time.Time
	newID    func() string

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customises Rules.
type Option func(*Rules)

// WithRand sets the PRNG used for every draw.
func WithRand(rng *rand.Rand) Option {
	return func(r *Rules) { r.rng = rng }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Rules) { r.now = now }
}

// WithIDs sets the id generator for players, tasks, completions and disputes.
func WithIDs(newID func() string) Option {
	return func(r *Rules) { r.newID = newID }
}

// NewRules returns Rules for the given defaults and catalog.
func NewRules(defaults Defaults, catalog Catalog, opts ...Option) *Rules {
	r := &Rules{
		defaults: defaults,
		catalog:  catalog,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = NewRand()
	}
	return r
}

// Catalog returns the packs these rules deal from.
func (r *Rules) Catalog() Catalog {
	return r.catalog
}

// Defaults returns the settings new games are created with.
func (r *Rules) Defaults() Defaults {
	return r.defaults
}

func (r *Rules) draw(fn func(rng *rand.Rand)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.rng)
}

func cleanName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", newError(KindInvalid, "please enter a name")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", newError(KindInvalid, "names can be at most %d characters", maxNameLength)
	}
	return name, nil
}

func sameName(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

func (r *Rules) newPlayer(gameID, name string, avatar Avatar, host bool) Player {
	return Player{
		ID:        r.newID(),
		Name:      name,
		GameID:    gameID,
		SwapsLeft: r.defaults.SwapAllowance,
		IsHost:    host,
		Tasks:     []TaskInstance{},
		Stats:     Stats{UniqueTargets: []string{}},
		Avatar:    avatar,
		JoinedAt:  r.now(),
	}
}

func requireNotEnded(g *Game) error {
	if g.Status == StatusEnded {
		return errEnded
	}
	return nil
}

func requirePlayer(g *Game, playerID string) (*Player, error) {
	p := g.Player(playerID)
	if p == nil {
		return nil, newError(KindNotFound, "you are not in this game")
	}
	return p, nil
}

func requireHost(g *Game, playerID string) (*Player, error) {
	p, err := requirePlayer(g, playerID)
	if err != nil {
		return nil, err
	}
	if !p.IsHost {
		return nil, ErrUnauthorized
	}
	return p, nil
}
