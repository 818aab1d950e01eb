package game

import (
	"slices"
	"time"
)

// DisputeStatus tracks a dispute from opening to resolution.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeVoting   DisputeStatus = "voting"
	DisputeResolved DisputeStatus = "resolved"
)

// Verdict is how a resolved dispute went for the accused player.
type Verdict string

const (
	// VerdictUpheld keeps the gotcha.
	VerdictUpheld Verdict = "upheld"
	// VerdictOverturned turns the gotcha into a failed task.
	VerdictOverturned Verdict = "overturned"
)

// Dispute is raised by a target who says a gotcha against them did not
// happen. The other players vote; if they have not all voted by the
// deadline the votes cast so far decide and no votes at all keeps the
// gotcha.
type Dispute struct {
	ID         string        `json:"id"`
	TaskID     string        `json:"taskId"`
	AccusedID  string        `json:"accusedId"`
	DisputerID string        `json:"disputerId"`
	Status     DisputeStatus `json:"status"`
	Votes      []Vote        `json:"votes"`
	OpenedAt   time.Time     `json:"openedAt"`
	Deadline   time.Time     `json:"deadline"`
	ResolvedAt *time.Time    `json:"resolvedAt,omitempty"`
	Verdict    Verdict       `json:"verdict,omitempty"`
}

// Vote is one player's ballot on a dispute.
type Vote struct {
	PlayerID string    `json:"playerId"`
	Uphold   bool      `json:"uphold"`
	CastAt   time.Time `json:"castAt"`
}

// Dispute returns a pointer into g.Disputes, or nil.
func (g *Game) Dispute(id string) *Dispute {
	for i := range g.Disputes {
		if g.Disputes[i].ID == id {
			return &g.Disputes[i]
		}
	}
	return nil
}

func (g *Game) findTask(taskID string) (*Player, *TaskInstance) {
	for i := range g.Players {
		if t := g.Players[i].Task(taskID); t != nil {
			return &g.Players[i], t
		}
	}
	return nil, nil
}

// OpenDispute lets the target of a completed gotcha contest it. Each task can
// be disputed once.
func (r *Rules) OpenDispute(g *Game, disputerID, taskID string) (Dispute, error) {
	if err := requireNotEnded(g); err != nil {
		return Dispute{}, err
	}
	if g.Status != StatusLive || g.Mode != ModeStealth {
		return Dispute{}, newError(KindPrecondition, "there is nothing to dispute")
	}
	if _, err := requirePlayer(g, disputerID); err != nil {
		return Dispute{}, err
	}
	owner, task := g.findTask(taskID)
	if task == nil {
		return Dispute{}, newError(KindNotFound, "task not found")
	}
	if task.DisputeID != "" {
		return Dispute{}, newError(KindPrecondition, "that gotcha has already been disputed")
	}
	if task.Status != TaskCompleted {
		return Dispute{}, newError(KindPrecondition, "only completed gotchas can be disputed")
	}
	if task.TargetID != disputerID {
		return Dispute{}, newError(KindUnauthorized, "only the player who was got can dispute it")
	}

	now := r.now()
	d := Dispute{
		ID:         r.newID(),
		TaskID:     task.ID,
		AccusedID:  owner.ID,
		DisputerID: disputerID,
		Status:     DisputeOpen,
		Votes:      []Vote{},
		OpenedAt:   now,
		Deadline:   now.Add(g.Settings.DisputeTimeout),
	}
	task.Status = TaskDisputed
	task.DisputeID = d.ID
	g.Disputes = append(g.Disputes, d)
	return d, nil
}

// CastVote records a ballot. Once every eligible player has voted the
// dispute resolves by majority, with ties settled by the game's tie-break
// setting.
func (r *Rules) CastVote(g *Game, voterID, disputeID string, uphold bool) error {
	if err := requireNotEnded(g); err != nil {
		return err
	}
	d := g.Dispute(disputeID)
	if d == nil {
		return newError(KindNotFound, "dispute not found")
	}
	if d.Status == DisputeResolved {
		return newError(KindPrecondition, "voting on this dispute has closed")
	}
	if _, err := requirePlayer(g, voterID); err != nil {
		return err
	}
	if voterID == d.AccusedID || voterID == d.DisputerID {
		return newError(KindUnauthorized, "you cannot vote on your own dispute")
	}
	if slices.ContainsFunc(d.Votes, func(v Vote) bool { return v.PlayerID == voterID }) {
		return newError(KindPrecondition, "you already voted")
	}

	d.Votes = append(d.Votes, Vote{PlayerID: voterID, Uphold: uphold, CastAt: r.now()})
	d.Status = DisputeVoting

	if pendingVoters(g, d) == 0 {
		r.resolve(g, d, tally(d, g.Settings.TieBreak))
	}
	return nil
}

// ExpireDisputes resolves every dispute whose deadline has passed and
// reports whether anything changed.
func (r *Rules) ExpireDisputes(g *Game) bool {
	if g.Status != StatusLive {
		return false
	}
	now := r.now()
	changed := false
	for i := range g.Disputes {
		d := &g.Disputes[i]
		if d.Status == DisputeResolved || now.Before(d.Deadline) {
			continue
		}
		r.resolve(g, d, lapsedVerdict(d, g.Settings.TieBreak))
		changed = true
	}
	return changed
}

// settleDisputes closes every unresolved dispute as if its deadline had
// passed. Games do not end with gotchas still in doubt.
func (r *Rules) settleDisputes(g *Game) {
	for i := range g.Disputes {
		d := &g.Disputes[i]
		if d.Status != DisputeResolved {
			r.resolve(g, d, lapsedVerdict(d, g.Settings.TieBreak))
		}
	}
}

func lapsedVerdict(d *Dispute, tieBreak TieBreak) Verdict {
	if len(d.Votes) == 0 {
		return VerdictUpheld
	}
	return tally(d, tieBreak)
}

// NextDeadline returns the earliest deadline among unresolved disputes.
func (g *Game) NextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for _, d := range g.Disputes {
		if d.Status == DisputeResolved {
			continue
		}
		if !found || d.Deadline.Before(next) {
			next = d.Deadline
			found = true
		}
	}
	return next, found
}

// pendingVoters counts players still in the game who may vote on d and
// have not.
func pendingVoters(g *Game, d *Dispute) int {
	n := 0
	for _, p := range g.Players {
		if p.ID == d.AccusedID || p.ID == d.DisputerID {
			continue
		}
		if !slices.ContainsFunc(d.Votes, func(v Vote) bool { return v.PlayerID == p.ID }) {
			n++
		}
	}
	return n
}

func tally(d *Dispute, tieBreak TieBreak) Verdict {
	uphold, overturn := 0, 0
	for _, v := range d.Votes {
		if v.Uphold {
			uphold++
		} else {
			overturn++
		}
	}
	switch {
	case uphold > overturn:
		return VerdictUpheld
	case overturn > uphold:
		return VerdictOverturned
	case tieBreak == TieBreakReject:
		return VerdictOverturned
	default:
		return VerdictUpheld
	}
}

func (r *Rules) resolve(g *Game, d *Dispute, verdict Verdict) {
	now := r.now()
	d.Status = DisputeResolved
	d.Verdict = verdict
	d.ResolvedAt = &now

	owner, task := g.findTask(d.TaskID)
	if task == nil {
		return
	}
	if verdict == VerdictUpheld {
		task.Status = TaskCompleted
		return
	}

	task.Status = TaskFailed
	owner.Stats.DisputesLost++
	if !g.Settings.NegativeScoring {
		return
	}
	owner.Score -= task.Points
	owner.Stats.Gotchas--
	if task.Points > gotchaPoints {
		if other := standingGotcha(owner, task); other != nil {
			other.Points += firstTargetBonus
			owner.Score += firstTargetBonus
		} else {
			owner.Stats.UniqueTargets = slices.DeleteFunc(owner.Stats.UniqueTargets, func(id string) bool { return id == task.TargetID })
			owner.Stats.FirstTimeTargets--
		}
	}
	task.Points = 0
}

// standingGotcha returns another scored gotcha by p on the same target, the
// earliest one first.
func standingGotcha(p *Player, overturned *TaskInstance) *TaskInstance {
	var found *TaskInstance
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.ID == overturned.ID || t.TargetID != overturned.TargetID || t.Points == 0 {
			continue
		}
		if t.Status != TaskCompleted && t.Status != TaskDisputed {
			continue
		}
		if found == nil || (t.CompletedAt != nil && found.CompletedAt != nil && t.CompletedAt.Before(*found.CompletedAt)) {
			found = t
		}
	}
	return found
}
