package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Seednode/whogotwho/game"
)

// Memory keeps games in process memory. Games are lost on restart.
type Memory struct {
	mu     sync.Mutex
	games  map[string]game.Game
	broker *broker
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		games:  make(map[string]game.Game),
		broker: newBroker(),
	}
}

// Create stores a new game.
func (s *Memory) Create(ctx context.Context, g game.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.games[g.ID]; exists {
		return game.ErrConflict
	}
	g = g.Clone()
	g.Version = 1
	s.games[g.ID] = g
	s.broker.publish(game.Event{Game: g})
	return nil
}

// Get returns a copy of a game.
func (s *Memory) Get(ctx context.Context, id string) (game.Game, error) {
	if err := ctx.Err(); err != nil {
		return game.Game{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[id]
	if !ok {
		return game.Game{}, game.GameNotFound(id)
	}
	return g.Clone(), nil
}

// Update applies mutate to a copy of the game and commits it if mutate
// succeeds.
func (s *Memory) Update(ctx context.Context, id string, mutate func(*game.Game) error) (game.Game, error) {
	if err := ctx.Err(); err != nil {
		return game.Game{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.games[id]
	if !ok {
		return game.Game{}, game.GameNotFound(id)
	}
	next := current.Clone()
	if err := mutate(&next); err != nil {
		return game.Game{}, err
	}
	next.ID = current.ID
	next.Version = current.Version + 1
	s.games[id] = next
	s.broker.publish(game.Event{Game: next})
	return next.Clone(), nil
}

// Delete removes a game and notifies subscribers.
func (s *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[id]
	if !ok {
		return game.GameNotFound(id)
	}
	delete(s.games, id)
	s.broker.publish(game.Event{Game: g, Deleted: true})
	return nil
}

// List returns every game with the given status, oldest first.
func (s *Memory) List(ctx context.Context, status game.Status) ([]game.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]game.Game, 0)
	for _, g := range s.games {
		if g.Status == status {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Subscribe registers fn for changes to one game. The current document is
// delivered first so late subscribers start from a full snapshot.
func (s *Memory) Subscribe(ctx context.Context, id string, fn func(game.Event)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[id]
	if !ok {
		return nil, game.GameNotFound(id)
	}
	return s.broker.subscribe(ctx, g, fn), nil
}

var _ game.Store = (*Memory)(nil)
