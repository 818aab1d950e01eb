package game

import (
	"cmp"
	"slices"
)

// Outcome is what a player reports for one of their tasks.
type Outcome string

const (
	OutcomePassed Outcome = "passed"
	OutcomeFailed Outcome = "failed"
)

const (
	gotchaPoints     = 1.0
	firstTargetBonus = 0.5
)

// ClaimGotcha resolves a stealth task. A pass scores one point, plus half a
// point the first time the player gets this particular target. A fail is
// recorded with the catcher, if any. Reaching the target score ends the
// game with this player as the winner.
func (r *Rules) ClaimGotcha(g *Game, playerID, taskID string, outcome Outcome, targetID string) error {
	if err := requireNotEnded(g); err != nil {
		return err
	}
	if g.Status != StatusLive {
		return newError(KindPrecondition, "the game has not started yet")
	}
	if g.Mode != ModeStealth {
		return newError(KindPrecondition, "this game has no tasks")
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
		return newError(KindPrecondition, "that task is already finished")
	}
	if targetID != "" {
		if targetID == playerID {
			return newError(KindInvalid, "you cannot target yourself")
		}
		if g.Player(targetID) == nil {
			return newError(KindNotFound, "that player is not in this game")
		}
	}

	now := r.now()
	switch outcome {
	case OutcomePassed:
		if targetID == "" {
			return newError(KindInvalid, "who did you get?")
		}
		points := gotchaPoints
		if !p.hasTarget(targetID) {
			points += firstTargetBonus
			p.Stats.UniqueTargets = append(p.Stats.UniqueTargets, targetID)
			p.Stats.FirstTimeTargets++
		}
		task.Status = TaskCompleted
		task.TargetID = targetID
		task.CompletedAt = &now
		task.Points = points
		p.Score += points
		p.Stats.Gotchas++

		if g.Settings.TargetScore > 0 && p.Score >= g.Settings.TargetScore {
			r.finish(g, p.ID)
		}
	case OutcomeFailed:
		task.Status = TaskFailed
		task.TargetID = targetID
		task.CompletedAt = &now
		p.Stats.Failed++
	default:
		return newError(KindInvalid, "unknown outcome %q", outcome)
	}
	return nil
}

// CheckChallenge reports whether playerID may claim challengeID right now.
// It is run before a proof image is uploaded so that obviously doomed claims
// never touch storage; CompleteChallenge runs it again under the store lock.
func (r *Rules) CheckChallenge(g *Game, playerID, challengeID string, hasProof bool) error {
	if err := requireNotEnded(g); err != nil {
		return err
	}
	if g.Status != StatusLive {
		return newError(KindPrecondition, "the game has not started yet")
	}
	if g.Mode != ModeRace {
		return newError(KindPrecondition, "this game has no challenges")
	}
	p, err := requirePlayer(g, playerID)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(g.Challenges, func(c Challenge) bool { return c.ID == challengeID })
	if idx < 0 {
		return newError(KindNotFound, "challenge not found")
	}
	if p.hasCompleted(challengeID) {
		return ErrAlreadyCompleted
	}
	if g.Challenges[idx].RequiresProof && !hasProof {
		return newError(KindPrecondition, "this challenge needs a photo")
	}
	if _, silvers := countTiers(g, challengeID); g.Settings.MaxSilverPerChallenge > 0 && silvers >= g.Settings.MaxSilverPerChallenge {
		return newError(KindPrecondition, "every medal for this challenge has been claimed")
	}
	return nil
}

// CompleteChallenge records a race-mode claim. The first claim on a
// challenge is gold, every later one silver. Reaching the win threshold
// ends the game with this player as the winner.
func (r *Rules) CompleteChallenge(g *Game, playerID, challengeID, proofURL string) (ChallengeCompletion, error) {
	if err := r.CheckChallenge(g, playerID, challengeID, proofURL != ""); err != nil {
		return ChallengeCompletion{}, err
	}
	p := g.Player(playerID)

	tier, points := TierGold, g.Settings.GoldPoints
	if golds, _ := countTiers(g, challengeID); golds > 0 {
		tier, points = TierSilver, g.Settings.SilverPoints
	}

	c := ChallengeCompletion{
		ID:          r.newID(),
		GameID:      g.ID,
		PlayerID:    p.ID,
		ChallengeID: challengeID,
		CompletedAt: r.now(),
		Points:      points,
		Tier:        tier,
		ProofURL:    proofURL,
	}
	g.ChallengeCompletions = append(g.ChallengeCompletions, c)
	p.CompletedChallenges = append(p.CompletedChallenges, challengeID)
	p.ChallengeScore += points

	if g.Settings.WinThreshold > 0 && p.ChallengeScore >= g.Settings.WinThreshold {
		r.finish(g, p.ID)
	}
	return c, nil
}

func countTiers(g *Game, challengeID string) (golds, silvers int) {
	for _, c := range g.ChallengeCompletions {
		if c.ChallengeID != challengeID {
			continue
		}
		switch c.Tier {
		case TierGold:
			golds++
		case TierSilver:
			silvers++
		}
	}
	return golds, silvers
}

// Standing is one row of the recap leaderboard.
type Standing struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Gotchas  int     `json:"gotchas"`
	Golds    int     `json:"golds,omitempty"`
}

// Leaderboard ranks players by score, then by gotchas (stealth) or golds
// (race), then by join order. Equal keys share a rank.
func Leaderboard(g *Game) []Standing {
	golds := make(map[string]int)
	for _, c := range g.ChallengeCompletions {
		if c.Tier == TierGold {
			golds[c.PlayerID]++
		}
	}

	out := make([]Standing, 0, len(g.Players))
	for _, p := range g.Players {
		score := p.Score
		if g.Mode == ModeRace {
			score = float64(p.ChallengeScore)
		}
		out = append(out, Standing{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    score,
			Gotchas:  p.Stats.Gotchas,
			Golds:    golds[p.ID],
		})
	}

	slices.SortStableFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Gotchas, a.Gotchas); c != 0 {
			return c
		}
		return cmp.Compare(b.Golds, a.Golds)
	})

	for i := range out {
		out[i].Rank = i + 1
		if i > 0 && out[i].Score == out[i-1].Score && out[i].Gotchas == out[i-1].Gotchas && out[i].Golds == out[i-1].Golds {
			out[i].Rank = out[i-1].Rank
		}
	}
	return out
}
