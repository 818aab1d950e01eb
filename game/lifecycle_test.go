package game

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestNewGameHostOnly(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)

	g, err := r.NewGame("ABCDEF", "  Alice  ", Avatar{Emoji: "🦊"})
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	if g.Status != StatusDraft || g.Phase != StatusDraft {
		t.Fatalf("status = %s/%s, want draft", g.Status, g.Phase)
	}
	if len(g.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(g.Players))
	}
	host := g.Players[0]
	if host.Name != "Alice" {
		t.Fatalf("name = %q, want Alice", host.Name)
	}
	if !host.IsHost || g.HostID != host.ID || g.CreatedBy != host.ID {
		t.Fatalf("host = %+v, hostId = %s, want Alice as host", host, g.HostID)
	}
	if host.Score != 0 || host.SwapsLeft != 2 || len(host.Tasks) != 0 {
		t.Fatalf("host = %+v, want score 0, swapsLeft 2, no tasks", host)
	}
	if host.GameID != "ABCDEF" {
		t.Fatalf("gameId = %q, want ABCDEF", host.GameID)
	}
}

func TestNewGameRejectsBadNames(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)

	for _, name := range []string{"", "   ", strings.Repeat("x", maxNameLength+1)} {
		if _, err := r.NewGame("ABCDEF", name, Avatar{}); !errors.Is(err, ErrInvalid) {
			t.Fatalf("name %q: err = %v, want invalid", name, err)
		}
	}
}

func TestJoinDuplicateNameIgnoresCase(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLobby(t, r, "Alice", "Sam")

	_, err := r.Join(&g, "sam", Avatar{})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("err = %v, want duplicate name", err)
	}
	if len(g.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(g.Players))
	}

	if _, err := r.Join(&g, "  SAM ", Avatar{}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("err = %v, want duplicate name after trimming", err)
	}
}

func TestJoinFullGame(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLobby(t, r, "Alice")
	g.Settings.MaxPlayers = 2

	if _, err := r.Join(&g, "Bob", Avatar{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := r.Join(&g, "Cara", Avatar{}); !errors.Is(err, ErrGameFull) {
		t.Fatalf("err = %v, want game full", err)
	}
}

func TestJoinStartedGame(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob")

	if _, err := r.Join(&g, "Cara", Avatar{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestSelectPack(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLobby(t, r, "Alice", "Bob")
	bob := playerNamed(t, &g, "Bob")

	if err := r.SelectPack(&g, bob.ID, "classic"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-host err = %v, want unauthorized", err)
	}
	if err := r.SelectPack(&g, g.HostID, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown pack err = %v, want not found", err)
	}

	if err := r.SelectPack(&g, g.HostID, "holiday"); err != nil {
		t.Fatalf("select pack: %v", err)
	}
	if g.PackID != "holiday" || g.Settings.SelectedPack != "holiday" {
		t.Fatalf("pack = %q/%q, want holiday", g.PackID, g.Settings.SelectedPack)
	}
	if g.Mode != ModeRace || g.GameType != TypeHolidayChallenge {
		t.Fatalf("mode = %s, type = %s, want race holiday-challenge", g.Mode, g.GameType)
	}
	if g.Settings.WinThreshold != 18 || g.Settings.GoldPoints != 3 || g.Settings.SilverPoints != 1 {
		t.Fatalf("settings = %+v, want threshold 18, gold 3, silver 1", g.Settings)
	}

	if err := r.SelectPack(&g, g.HostID, "classic"); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if g.Mode != ModeStealth || g.Settings.WinThreshold != 0 || g.Settings.TargetScore != 4 {
		t.Fatalf("after reselect mode = %s, settings = %+v", g.Mode, g.Settings)
	}
}

func TestStartWithoutPack(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLobby(t, r, "Alice", "Bob")

	err := r.Start(&g, g.HostID)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if g.Status != StatusDraft {
		t.Fatalf("status = %s, want draft", g.Status)
	}
}

func TestStartStealthDealsTasks(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob", "Cara")

	if g.Status != StatusLive || !g.Settings.TasksLoaded {
		t.Fatalf("status = %s, tasksLoaded = %v", g.Status, g.Settings.TasksLoaded)
	}
	ids := make(map[string]bool)
	for _, p := range g.Players {
		if len(p.Tasks) != 6 {
			t.Fatalf("%s has %d tasks, want 6", p.Name, len(p.Tasks))
		}
		bonus := 0
		for _, task := range p.Tasks {
			if task.Status != TaskPending || task.PlayerID != p.ID || task.GameID != g.ID {
				t.Fatalf("task = %+v", task)
			}
			if ids[task.ID] {
				t.Fatalf("task id %s reused", task.ID)
			}
			ids[task.ID] = true
			if task.Bonus {
				bonus++
			}
		}
		if bonus > 1 {
			t.Fatalf("%s has %d bonus tasks", p.Name, bonus)
		}
	}
}

func TestStartRaceDrawsSharedChallenges(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "holiday", "Alice", "Bob")

	if len(g.Challenges) != 10 {
		t.Fatalf("challenges = %d, want 10", len(g.Challenges))
	}
	for _, p := range g.Players {
		if len(p.Tasks) != 0 || p.ChallengeScore != 0 {
			t.Fatalf("player = %+v, want no tasks and zero challenge score", p)
		}
	}
}

func TestStartTwice(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob")

	if err := r.Start(&g, g.HostID); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want precondition", err)
	}
}

func TestSwapReplacesContentAndKeepsID(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob")
	alice := playerNamed(t, &g, "Alice")
	task := alice.Tasks[0]

	if err := r.Swap(&g, alice.ID, task.ID); err != nil {
		t.Fatalf("swap: %v", err)
	}
	alice = playerNamed(t, &g, "Alice")
	swapped := alice.Task(task.ID)
	if swapped == nil {
		t.Fatal("task id changed")
	}
	if swapped.CatalogID == task.CatalogID {
		t.Fatalf("catalog id unchanged: %s", swapped.CatalogID)
	}
	if alice.SwapsLeft != 1 {
		t.Fatalf("swapsLeft = %d, want 1", alice.SwapsLeft)
	}
	seen := make(map[string]bool)
	for _, t2 := range alice.Tasks {
		if seen[t2.CatalogID] {
			t.Fatalf("catalog task %s dealt twice", t2.CatalogID)
		}
		seen[t2.CatalogID] = true
	}
}

func TestSwapAllowanceIsSpent(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob")
	alice := playerNamed(t, &g, "Alice")
	taskID := alice.Tasks[0].ID

	for n := 1; n <= 3; n++ {
		err := r.Swap(&g, alice.ID, taskID)
		want := max(2-n, 0)
		if got := playerNamed(t, &g, "Alice").SwapsLeft; got != want {
			t.Fatalf("after %d swaps swapsLeft = %d, want %d", n, got, want)
		}
		if n == 3 && !errors.Is(err, ErrPrecondition) {
			t.Fatalf("third swap err = %v, want precondition", err)
		}
	}
}

func TestSwapWithNoneLeftChangesNothing(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob")
	alice := playerNamed(t, &g, "Alice")
	alice.SwapsLeft = 0
	before := g.Clone()

	err := r.Swap(&g, alice.ID, alice.Tasks[0].ID)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if !reflect.DeepEqual(g, before) {
		t.Fatal("game changed by refused swap")
	}
}

func TestSwapLockedIn(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob")
	alice := playerNamed(t, &g, "Alice")

	if err := r.LockIn(&g, alice.ID, true); err != nil {
		t.Fatalf("lock in: %v", err)
	}
	if err := r.Swap(&g, alice.ID, alice.Tasks[0].ID); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if err := r.LockIn(&g, alice.ID, false); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := r.Swap(&g, alice.ID, alice.Tasks[0].ID); err != nil {
		t.Fatalf("swap after unlock: %v", err)
	}
}

func TestLobbyLockInClearedByStart(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLobby(t, r, "Alice", "Bob")
	for _, p := range g.Players {
		if err := r.LockIn(&g, p.ID, true); err != nil {
			t.Fatalf("lock in %s: %v", p.Name, err)
		}
	}
	if err := r.SelectPack(&g, g.HostID, "classic"); err != nil {
		t.Fatalf("select pack: %v", err)
	}
	if err := r.Start(&g, g.HostID); err != nil {
		t.Fatalf("start: %v", err)
	}

	alice := playerNamed(t, &g, "Alice")
	if alice.LockedIn || playerNamed(t, &g, "Bob").LockedIn {
		t.Fatal("readiness carried into the live game")
	}
	for i := 0; i < g.Settings.SwapAllowance; i++ {
		if err := r.Swap(&g, alice.ID, alice.Tasks[i].ID); err != nil {
			t.Fatalf("swap %d: %v", i+1, err)
		}
	}
	if alice.SwapsLeft != 0 {
		t.Fatalf("swaps left = %d, want 0", alice.SwapsLeft)
	}
}

func TestSwapUnknownTask(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob")

	if err := r.Swap(&g, g.HostID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestLeave(t *testing.T) {
	t.Parallel()

	t.Run("host leaving draft deletes", func(t *testing.T) {
		r, _ := newTestRules(t)
		g := newLobby(t, r, "Alice", "Bob")
		del, err := r.Leave(&g, g.HostID)
		if err != nil || !del {
			t.Fatalf("leave = %v, %v, want delete", del, err)
		}
	})

	t.Run("player leaving draft", func(t *testing.T) {
		r, _ := newTestRules(t)
		g := newLobby(t, r, "Alice", "Bob")
		bob := playerNamed(t, &g, "Bob")
		del, err := r.Leave(&g, bob.ID)
		if err != nil || del {
			t.Fatalf("leave = %v, %v", del, err)
		}
		if len(g.Players) != 1 || countHosts(&g) != 1 {
			t.Fatalf("players = %+v", g.Players)
		}
	})

	t.Run("host leaving live game hands over", func(t *testing.T) {
		r, _ := newTestRules(t)
		g := newLiveGame(t, r, "classic", "Alice", "Bob", "Cara")
		del, err := r.Leave(&g, g.HostID)
		if err != nil || del {
			t.Fatalf("leave = %v, %v", del, err)
		}
		if countHosts(&g) != 1 {
			t.Fatalf("hosts = %d, want 1", countHosts(&g))
		}
		if bob := playerNamed(t, &g, "Bob"); !bob.IsHost || g.HostID != bob.ID {
			t.Fatalf("host = %s, want Bob", g.HostID)
		}
	})

	t.Run("last player leaving deletes", func(t *testing.T) {
		r, _ := newTestRules(t)
		g := newLiveGame(t, r, "classic", "Alice", "Bob")
		bob := playerNamed(t, &g, "Bob")
		if _, err := r.Leave(&g, bob.ID); err != nil {
			t.Fatalf("leave: %v", err)
		}
		del, err := r.Leave(&g, g.HostID)
		if err != nil || !del {
			t.Fatalf("leave = %v, %v, want delete", del, err)
		}
	})

	t.Run("unknown player", func(t *testing.T) {
		r, _ := newTestRules(t)
		g := newLobby(t, r, "Alice")
		if _, err := r.Leave(&g, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestEnd(t *testing.T) {
	t.Parallel()
	r, clock := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob")
	bob := playerNamed(t, &g, "Bob")
	bob.Score = 2

	if err := r.End(&g, bob.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-host err = %v, want unauthorized", err)
	}
	if err := r.End(&g, g.HostID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if g.Status != StatusEnded || g.WinnerID != bob.ID {
		t.Fatalf("status = %s, winner = %s, want ended with Bob", g.Status, g.WinnerID)
	}
	if g.EndedAt == nil || !g.EndedAt.Equal(clock.now) {
		t.Fatalf("endedAt = %v, want %v", g.EndedAt, clock.now)
	}

	before := g.Clone()
	if err := r.End(&g, g.HostID); err != nil {
		t.Fatalf("second end: %v", err)
	}
	if !reflect.DeepEqual(g, before) {
		t.Fatal("ending an ended game changed it")
	}
}

func TestEndedGameRefusesMutations(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob")
	alice := playerNamed(t, &g, "Alice")
	taskID := alice.Tasks[0].ID
	if err := r.End(&g, g.HostID); err != nil {
		t.Fatalf("end: %v", err)
	}

	checks := map[string]error{
		"swap":    r.Swap(&g, alice.ID, taskID),
		"lock in": r.LockIn(&g, alice.ID, true),
		"gotcha":  r.ClaimGotcha(&g, alice.ID, taskID, OutcomeFailed, ""),
		"pack":    r.SelectPack(&g, alice.ID, "office"),
		"start":   r.Start(&g, alice.ID),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("%s err = %v, want precondition", name, err)
		}
	}

	bob := playerNamed(t, &g, "Bob")
	if _, err := r.Leave(&g, bob.ID); err != nil {
		t.Fatalf("leaving an ended game: %v", err)
	}
}

func TestOneHostThroughLifecycle(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLobby(t, r, "Alice", "Bob", "Cara", "Dev")
	if countHosts(&g) != 1 {
		t.Fatalf("draft hosts = %d", countHosts(&g))
	}
	if err := r.SelectPack(&g, g.HostID, "office"); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(&g, g.HostID); err != nil {
		t.Fatal(err)
	}
	for len(g.Players) > 1 {
		if countHosts(&g) != 1 {
			t.Fatalf("hosts = %d with %d players", countHosts(&g), len(g.Players))
		}
		if _, err := r.Leave(&g, g.HostID); err != nil {
			t.Fatal(err)
		}
	}
	if countHosts(&g) != 1 {
		t.Fatalf("hosts = %d with one player", countHosts(&g))
	}
}
