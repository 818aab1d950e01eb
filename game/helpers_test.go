package game

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestRules(t *testing.T) (*Rules, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)}
	r := NewRules(DefaultDefaults(), DefaultCatalog(),
		WithRand(rand.New(rand.NewPCG(7, 11))),
		WithClock(clock.Now),
		WithIDs(sequentialIDs("id")),
	)
	return r, clock
}

// newLobby creates a draft game hosted by names[0] with the rest joined.
func newLobby(t *testing.T, r *Rules, names ...string) Game {
	t.Helper()
	g, err := r.NewGame("ABCDEF", names[0], Avatar{Emoji: "🦊"})
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	for _, name := range names[1:] {
		if _, err := r.Join(&g, name, Avatar{}); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}
	return g
}

// newLiveGame starts a game on packID with the given players.
func newLiveGame(t *testing.T, r *Rules, packID string, names ...string) Game {
	t.Helper()
	g := newLobby(t, r, names...)
	if err := r.SelectPack(&g, g.HostID, packID); err != nil {
		t.Fatalf("select pack: %v", err)
	}
	if err := r.Start(&g, g.HostID); err != nil {
		t.Fatalf("start: %v", err)
	}
	return g
}

func playerNamed(t *testing.T, g *Game, name string) *Player {
	t.Helper()
	for i := range g.Players {
		if g.Players[i].Name == name {
			return &g.Players[i]
		}
	}
	t.Fatalf("no player named %s", name)
	return nil
}

func countHosts(g *Game) int {
	n := 0
	for _, p := range g.Players {
		if p.IsHost {
			n++
		}
	}
	return n
}
