package game

import (
	"context"
	"fmt"
)

// Event is delivered to subscribers after every committed change to a game.
// The full document is always included; Deleted is set when the game was
// removed, in which case Game holds the last committed state.
type Event struct {
	Game    Game
	Deleted bool
}

// Store persists Game documents and broadcasts every committed change.
//
// Implementations must apply Update atomically per game: mutate runs on a
// private copy of the current document and the result is committed only if
// mutate returns nil. Subscribers of a game receive events in commit order,
// including events caused by their own writes.
//
// A missing game is reported with an error matching ErrNotFound, a duplicate
// id on Create with ErrConflict.
type Store interface {
	Create(ctx context.Context, g Game) error
	Get(ctx context.Context, id string) (Game, error)
	Update(ctx context.Context, id string, mutate func(*Game) error) (Game, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, status Status) ([]Game, error)
	Subscribe(ctx context.Context, id string, fn func(Event)) (unsubscribe func(), err error)
}

// GameNotFound returns the error stores use for a missing game.
func GameNotFound(id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("no game with code %s", id)}
}
