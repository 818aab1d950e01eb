package game

import (
	"errors"
	"testing"
	"time"
)

// disputedGotcha has Alice get Bob and Bob dispute it, in a four player game.
func disputedGotcha(t *testing.T, r *Rules) (Game, string, string) {
	t.Helper()
	g := newLiveGame(t, r, "classic", "Alice", "Bob", "Cara", "Dev")
	alice := playerNamed(t, &g, "Alice")
	bob := playerNamed(t, &g, "Bob")
	taskID := alice.Tasks[0].ID

	if err := r.ClaimGotcha(&g, alice.ID, taskID, OutcomePassed, bob.ID); err != nil {
		t.Fatalf("gotcha: %v", err)
	}
	d, err := r.OpenDispute(&g, bob.ID, taskID)
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if d.Status != DisputeOpen || d.AccusedID != alice.ID || d.DisputerID != bob.ID {
		t.Fatalf("dispute = %+v", d)
	}
	if task := playerNamed(t, &g, "Alice").Task(taskID); task.Status != TaskDisputed || task.DisputeID != d.ID {
		t.Fatalf("task = %+v, want disputed", task)
	}
	return g, d.ID, taskID
}

func vote(t *testing.T, r *Rules, g *Game, name, disputeID string, uphold bool) {
	t.Helper()
	if err := r.CastVote(g, playerNamed(t, g, name).ID, disputeID, uphold); err != nil {
		t.Fatalf("%s vote: %v", name, err)
	}
}

func TestDisputeVerdicts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cara     bool
		dev      bool
		tieBreak TieBreak
		want     Verdict
	}{
		{name: "majority upholds", cara: true, dev: true, tieBreak: TieBreakAccept, want: VerdictUpheld},
		{name: "majority overturns", cara: false, dev: false, tieBreak: TieBreakAccept, want: VerdictOverturned},
		{name: "tie accepted", cara: true, dev: false, tieBreak: TieBreakAccept, want: VerdictUpheld},
		{name: "tie rejected", cara: true, dev: false, tieBreak: TieBreakReject, want: VerdictOverturned},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, _ := newTestRules(t)
			g, disputeID, taskID := disputedGotcha(t, r)
			g.Settings.TieBreak = tc.tieBreak

			vote(t, r, &g, "Cara", disputeID, tc.cara)
			if d := g.Dispute(disputeID); d.Status != DisputeVoting {
				t.Fatalf("status after one vote = %s, want voting", d.Status)
			}
			vote(t, r, &g, "Dev", disputeID, tc.dev)

			d := g.Dispute(disputeID)
			if d.Status != DisputeResolved || d.Verdict != tc.want || d.ResolvedAt == nil {
				t.Fatalf("dispute = %+v, want resolved %s", d, tc.want)
			}

			alice := playerNamed(t, &g, "Alice")
			task := alice.Task(taskID)
			switch tc.want {
			case VerdictUpheld:
				if task.Status != TaskCompleted || alice.Stats.DisputesLost != 0 {
					t.Fatalf("task = %s, disputes lost = %d", task.Status, alice.Stats.DisputesLost)
				}
			case VerdictOverturned:
				if task.Status != TaskFailed || alice.Stats.DisputesLost != 1 {
					t.Fatalf("task = %s, disputes lost = %d", task.Status, alice.Stats.DisputesLost)
				}
			}
			if alice.Score != 1.5 {
				t.Fatalf("score = %v, want 1.5 without negative scoring", alice.Score)
			}
		})
	}
}

func TestDisputeNegativeScoringRevokesPoints(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g, disputeID, taskID := disputedGotcha(t, r)
	g.Settings.NegativeScoring = true

	vote(t, r, &g, "Cara", disputeID, false)
	vote(t, r, &g, "Dev", disputeID, false)

	alice := playerNamed(t, &g, "Alice")
	if alice.Score != 0 {
		t.Fatalf("score = %v, want 0", alice.Score)
	}
	if alice.Stats.Gotchas != 0 || alice.Stats.FirstTimeTargets != 0 || len(alice.Stats.UniqueTargets) != 0 {
		t.Fatalf("stats = %+v, want gotcha revoked", alice.Stats)
	}
	if task := alice.Task(taskID); task.Points != 0 || task.Status != TaskFailed {
		t.Fatalf("task = %+v", task)
	}
}

func TestDisputeExpiry(t *testing.T) {
	t.Parallel()
	r, clock := newTestRules(t)
	g, disputeID, taskID := disputedGotcha(t, r)

	deadline, ok := g.NextDeadline()
	if !ok || !deadline.Equal(clock.Now().Add(g.Settings.DisputeTimeout)) {
		t.Fatalf("next deadline = %v, %v", deadline, ok)
	}

	clock.Advance(g.Settings.DisputeTimeout - time.Second)
	if r.ExpireDisputes(&g) {
		t.Fatal("dispute expired before its deadline")
	}

	clock.Advance(time.Second)
	if !r.ExpireDisputes(&g) {
		t.Fatal("dispute did not expire at its deadline")
	}
	if d := g.Dispute(disputeID); d.Status != DisputeResolved || d.Verdict != VerdictUpheld {
		t.Fatalf("dispute = %+v, want upheld without votes", d)
	}
	if task := playerNamed(t, &g, "Alice").Task(taskID); task.Status != TaskCompleted {
		t.Fatalf("task status = %s, want completed", task.Status)
	}
	if _, ok := g.NextDeadline(); ok {
		t.Fatal("resolved dispute still has a deadline")
	}
	if r.ExpireDisputes(&g) {
		t.Fatal("resolved dispute expired twice")
	}
}

func TestDisputeExpiryCountsCastVotes(t *testing.T) {
	t.Parallel()
	r, clock := newTestRules(t)
	g, disputeID, _ := disputedGotcha(t, r)

	vote(t, r, &g, "Cara", disputeID, false)
	clock.Advance(g.Settings.DisputeTimeout)
	r.ExpireDisputes(&g)

	if d := g.Dispute(disputeID); d.Verdict != VerdictOverturned {
		t.Fatalf("verdict = %s, want overturned", d.Verdict)
	}
}

func TestDisputePermissions(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g, disputeID, taskID := disputedGotcha(t, r)
	alice := playerNamed(t, &g, "Alice").ID
	bob := playerNamed(t, &g, "Bob").ID
	cara := playerNamed(t, &g, "Cara").ID

	if _, err := r.OpenDispute(&g, bob, taskID); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("second dispute err = %v, want precondition", err)
	}
	if err := r.CastVote(&g, alice, disputeID, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("accused vote err = %v, want unauthorized", err)
	}
	if err := r.CastVote(&g, bob, disputeID, false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("disputer vote err = %v, want unauthorized", err)
	}
	if err := r.CastVote(&g, cara, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown dispute err = %v, want not found", err)
	}
	if err := r.CastVote(&g, cara, disputeID, true); err != nil {
		t.Fatalf("cara vote: %v", err)
	}
	if err := r.CastVote(&g, cara, disputeID, true); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("double vote err = %v, want precondition", err)
	}
}

func TestOpenDisputeOnlyByTarget(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g := newLiveGame(t, r, "classic", "Alice", "Bob", "Cara")
	alice := playerNamed(t, &g, "Alice")
	bob := playerNamed(t, &g, "Bob")
	cara := playerNamed(t, &g, "Cara")
	got, pending := alice.Tasks[0].ID, alice.Tasks[1].ID

	if err := r.ClaimGotcha(&g, alice.ID, got, OutcomePassed, bob.ID); err != nil {
		t.Fatalf("gotcha: %v", err)
	}
	if _, err := r.OpenDispute(&g, cara.ID, got); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bystander dispute err = %v, want unauthorized", err)
	}
	if _, err := r.OpenDispute(&g, bob.ID, pending); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("pending task dispute err = %v, want precondition", err)
	}
	if _, err := r.OpenDispute(&g, bob.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown task err = %v, want not found", err)
	}
}

func TestDisputeResolvesWhenVotersLeave(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g, disputeID, _ := disputedGotcha(t, r)

	if _, err := r.Leave(&g, playerNamed(t, &g, "Dev").ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	vote(t, r, &g, "Cara", disputeID, true)

	if d := g.Dispute(disputeID); d.Status != DisputeResolved {
		t.Fatalf("status = %s, want resolved once every remaining voter voted", d.Status)
	}
}

func TestOverturnedFirstGotchaKeepsRepeatTarget(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g, disputeID, taskID := disputedGotcha(t, r)
	g.Settings.NegativeScoring = true
	alice := playerNamed(t, &g, "Alice")
	bob := playerNamed(t, &g, "Bob")
	repeat := alice.Tasks[1].ID

	if err := r.ClaimGotcha(&g, alice.ID, repeat, OutcomePassed, bob.ID); err != nil {
		t.Fatalf("repeat gotcha: %v", err)
	}
	vote(t, r, &g, "Cara", disputeID, false)
	vote(t, r, &g, "Dev", disputeID, false)

	alice = playerNamed(t, &g, "Alice")
	if alice.Score != 1.5 {
		t.Fatalf("score = %v, want 1.5 as if only the repeat had happened", alice.Score)
	}
	if !alice.hasTarget(bob.ID) || alice.Stats.FirstTimeTargets != 1 {
		t.Fatalf("stats = %+v, want Bob still counted", alice.Stats)
	}
	if task := alice.Task(repeat); task.Points != 1.5 {
		t.Fatalf("repeat points = %v, want the first-target bonus", task.Points)
	}
	if task := alice.Task(taskID); task.Points != 0 || task.Status != TaskFailed {
		t.Fatalf("overturned task = %+v", task)
	}

	if err := r.ClaimGotcha(&g, alice.ID, alice.Tasks[2].ID, OutcomePassed, bob.ID); err != nil {
		t.Fatalf("third gotcha: %v", err)
	}
	if got := playerNamed(t, &g, "Alice").Score; got != 2.5 {
		t.Fatalf("score = %v, want 2.5 after a repeat worth 1.0", got)
	}
}

func TestDisputeResolvesWhenLastPendingVoterLeaves(t *testing.T) {
	t.Parallel()
	r, _ := newTestRules(t)
	g, disputeID, taskID := disputedGotcha(t, r)

	vote(t, r, &g, "Cara", disputeID, false)
	if d := g.Dispute(disputeID); d.Status != DisputeVoting {
		t.Fatalf("status = %s, want voting", d.Status)
	}
	if _, err := r.Leave(&g, playerNamed(t, &g, "Dev").ID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	d := g.Dispute(disputeID)
	if d.Status != DisputeResolved || d.Verdict != VerdictOverturned {
		t.Fatalf("dispute = %+v, want overturned", d)
	}
	if task := playerNamed(t, &g, "Alice").Task(taskID); task.Status != TaskFailed {
		t.Fatalf("task status = %s, want failed", task.Status)
	}
}

func TestEndSettlesOpenDisputes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		votes       []bool
		wantVerdict Verdict
		wantTask    TaskStatus
	}{
		{name: "no votes", wantVerdict: VerdictUpheld, wantTask: TaskCompleted},
		{name: "one overturn", votes: []bool{false}, wantVerdict: VerdictOverturned, wantTask: TaskFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, _ := newTestRules(t)
			g, disputeID, taskID := disputedGotcha(t, r)
			for _, uphold := range tc.votes {
				vote(t, r, &g, "Cara", disputeID, uphold)
			}

			if err := r.End(&g, g.HostID); err != nil {
				t.Fatalf("end: %v", err)
			}
			d := g.Dispute(disputeID)
			if d.Status != DisputeResolved || d.Verdict != tc.wantVerdict {
				t.Fatalf("dispute = %+v, want %s", d, tc.wantVerdict)
			}
			if task := playerNamed(t, &g, "Alice").Task(taskID); task.Status != tc.wantTask {
				t.Fatalf("task status = %s, want %s", task.Status, tc.wantTask)
			}
			if _, ok := g.NextDeadline(); ok {
				t.Fatal("ended game still has a pending deadline")
			}
		})
	}
}
