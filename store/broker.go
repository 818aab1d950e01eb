// Package store provides the game.Store implementations: an in-memory store
// for single-process play and a SQLite store for games that survive a
// restart. Both fan committed changes out to subscribers through a broker.
package store

import (
	"context"
	"sync"

	"github.com/Seednode/whogotwho/game"
)

// broker delivers events per game in commit order. Each subscriber has its
// own queue and goroutine, so a slow subscriber never blocks a writer or
// another subscriber.
type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*subscriber
}

type subscriber struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []game.Event
	closed  bool
	deliver func(game.Event)
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[int]*subscriber)}
}

// subscribe registers fn and queues initial as its first event. Callers hold
// the per-game lock so initial cannot be overtaken by a concurrent write.
// The subscription also ends when ctx is done.
func (b *broker) subscribe(ctx context.Context, initial game.Game, fn func(game.Event)) func() {
	gameID := initial.ID
	s := &subscriber{
		queue:   []game.Event{{Game: initial.Clone()}},
		deliver: fn,
	}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[gameID] == nil {
		b.subs[gameID] = make(map[int]*subscriber)
	}
	b.subs[gameID][id] = s
	b.mu.Unlock()

	go s.run()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[gameID], id)
			if len(b.subs[gameID]) == 0 {
				delete(b.subs, gameID)
			}
			b.mu.Unlock()
			s.close()
		})
	}
	context.AfterFunc(ctx, unsubscribe)
	return unsubscribe
}

// publish must be called while the writer still holds the per-game lock so
// that queue order matches commit order.
func (b *broker) publish(ev game.Event) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs[ev.Game.ID]))
	for _, s := range b.subs[ev.Game.ID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.push(ev.Game.Clone(), ev.Deleted)
	}
}

func (b *broker) count(gameID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[gameID])
}

func (s *subscriber) push(g game.Game, deleted bool) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, game.Event{Game: g, Deleted: deleted})
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscriber) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(ev)
	}
}
