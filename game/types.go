// Package game holds the Who Got Who domain: the Game document, the pack
// catalog, random selection, and the lifecycle, scoring and dispute rules
// that mutate a Game.
//
// Rule functions in this package operate on a *Game in memory and never touch
// storage. The Manager wraps each of them in a single Store.Update so that a
// mutation is only visible once the store has committed it.
package game

import (
	"slices"
	"time"
)

// Status is the lifecycle stage of a Game.
type Status string

const (
	StatusDraft Status = "draft"
	StatusLive  Status = "live"
	StatusEnded Status = "ended"
)

// Mode selects the rule set a pack plays under.
type Mode string

const (
	// ModeStealth gives each player a private list of tasks to pull off
	// against the other players.
	ModeStealth Mode = "stealth"
	// ModeRace shares one list of challenges between all players; the first
	// to complete each one earns gold.
	ModeRace Mode = "race"
)

// Type is the user-facing game flavour derived from the selected pack.
type Type string

const (
	TypeTraditional      Type = "traditional"
	TypeHolidayChallenge Type = "holiday-challenge"
)

// TaskStatus tracks a single task through play.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskDisputed  TaskStatus = "disputed"
)

// Tier is the reward tier of a challenge completion.
type Tier string

const (
	TierGold   Tier = "gold"
	TierSilver Tier = "silver"
)

// TieBreak decides a dispute whose votes are evenly split.
type TieBreak string

const (
	TieBreakAccept TieBreak = "accept"
	TieBreakReject TieBreak = "reject"
)

// Game is the aggregate root and the only unit the store persists.
type Game struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Phase     Status    `json:"phase"`
	Mode      Mode      `json:"mode,omitempty"`
	PackID    string    `json:"packId,omitempty"`
	GameType  Type      `json:"gameType,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	HostID    string    `json:"hostId"`
	Players   []Player  `json:"players"`
	Settings  Settings  `json:"settings"`

	ChallengeCompletions []ChallengeCompletion `json:"challengeCompletions,omitempty"`
	Challenges           []Challenge           `json:"challenges,omitempty"`
	Disputes             []Dispute             `json:"disputes,omitempty"`

	WinnerID string     `json:"winnerId,omitempty"`
	EndedAt  *time.Time `json:"endedAt,omitempty"`

	// Version is bumped by the store on every committed write.
	Version int64 `json:"version"`
}

// Player is a participant in one Game.
type Player struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	GameID         string         `json:"gameId"`
	SwapsLeft      int            `json:"swapsLeft"`
	Score          float64        `json:"score"`
	ChallengeScore int            `json:"challengeScore"`
	LockedIn       bool           `json:"lockedIn"`
	IsHost         bool           `json:"isHost"`
	Tasks          []TaskInstance `json:"tasks"`
	Stats          Stats          `json:"stats"`
	Avatar         Avatar         `json:"avatar"`
	JoinedAt       time.Time      `json:"joinedAt"`

	CompletedChallenges []string `json:"completedChallenges,omitempty"`
}

// Stats aggregates a player's stealth-mode history.
type Stats struct {
	Gotchas          int      `json:"gotchas"`
	Failed           int      `json:"failed"`
	DisputesLost     int      `json:"disputesLost"`
	UniqueTargets    []string `json:"uniqueTargets"`
	FirstTimeTargets int      `json:"firstTimeTargets"`
}

// Avatar describes how a player is drawn. Photo capture happens client-side;
// the server only stores a reference.
type Avatar struct {
	Emoji    string `json:"emoji,omitempty"`
	Color    string `json:"color,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// TaskInstance is one task dealt to one player.
type TaskInstance struct {
	ID          string     `json:"id"`
	GameID      string     `json:"gameId"`
	PlayerID    string     `json:"playerId"`
	CatalogID   string     `json:"catalogId"`
	Text        string     `json:"text"`
	Hint        string     `json:"hint,omitempty"`
	Bonus       bool       `json:"bonus,omitempty"`
	Status      TaskStatus `json:"status"`
	TargetID    string     `json:"targetId,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DisputeID   string     `json:"disputeId,omitempty"`
	Points      float64    `json:"points,omitempty"`
}

// Challenge is a catalog entry for race mode.
type Challenge struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	RequiresProof bool   `json:"requiresProof,omitempty"`
}

// ChallengeCompletion records one player's claim on one challenge.
type ChallengeCompletion struct {
	ID          string    `json:"id"`
	GameID      string    `json:"gameId"`
	PlayerID    string    `json:"playerId"`
	ChallengeID string    `json:"challengeId"`
	CompletedAt time.Time `json:"completedAt"`
	Points      int       `json:"points"`
	Tier        Tier      `json:"tier"`
	ProofURL    string    `json:"proofUrl,omitempty"`
}

// Player returns a pointer into g.Players for the given id, or nil.
func (g *Game) Player(id string) *Player {
	for i := range g.Players {
		if g.Players[i].ID == id {
			return &g.Players[i]
		}
	}
	return nil
}

// Host returns the current host, or nil for an empty game.
func (g *Game) Host() *Player {
	for i := range g.Players {
		if g.Players[i].IsHost {
			return &g.Players[i]
		}
	}
	return nil
}

// Task returns the task with the given id from p's task list, or nil.
func (p *Player) Task(id string) *TaskInstance {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

func (p *Player) hasTarget(id string) bool {
	for _, t := range p.Stats.UniqueTargets {
		if t == id {
			return true
		}
	}
	return false
}

func (p *Player) hasCompleted(challengeID string) bool {
	for _, c := range p.CompletedChallenges {
		if c == challengeID {
			return true
		}
	}
	return false
}

func (g *Game) setStatus(s Status) {
	g.Status = s
	g.Phase = s
}

// Clone returns a deep copy so rule functions can mutate freely without
// aliasing a snapshot another goroutine may hold. Nil and empty slices keep
// their distinction.
func (g Game) Clone() Game {
	out := g
	out.Players = slices.Clone(g.Players)
	for i := range out.Players {
		p := &out.Players[i]
		p.Tasks = slices.Clone(p.Tasks)
		for j := range p.Tasks {
			p.Tasks[j].CompletedAt = cloneTime(p.Tasks[j].CompletedAt)
		}
		p.Stats.UniqueTargets = slices.Clone(p.Stats.UniqueTargets)
		p.CompletedChallenges = slices.Clone(p.CompletedChallenges)
	}
	out.ChallengeCompletions = slices.Clone(g.ChallengeCompletions)
	out.Challenges = slices.Clone(g.Challenges)
	out.Disputes = slices.Clone(g.Disputes)
	for i := range out.Disputes {
		d := &out.Disputes[i]
		d.Votes = slices.Clone(d.Votes)
		d.ResolvedAt = cloneTime(d.ResolvedAt)
	}
	out.EndedAt = cloneTime(g.EndedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
