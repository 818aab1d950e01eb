package game

import (
	"math"
	"time"
)

// Settings are fixed per game. Most come from Defaults when the game is
// created; the target score and win threshold are filled in when a pack is
// chosen, since both depend on how many players joined.
type Settings struct {
	SwapAllowance  int           `json:"swapAllowance"`
	DisputeTimeout time.Duration `json:"disputeTimeout"`
	TieBreak       TieBreak      `json:"tieBreak"`
	// NegativeScoring allows a lost dispute to take points back.
	NegativeScoring bool    `json:"negativeScoring"`
	MaxPlayers      int     `json:"maxPlayers"`
	TargetScore     float64 `json:"targetScore"`
	SelectedPack    string  `json:"selectedPack,omitempty"`
	TasksLoaded     bool    `json:"tasksLoaded"`

	WinThreshold          int `json:"winThreshold,omitempty"`
	GoldPoints            int `json:"goldPoints,omitempty"`
	SilverPoints          int `json:"silverPoints,omitempty"`
	MaxSilverPerChallenge int `json:"maxSilverPerChallenge,omitempty"`
}

// SizeTier is one row of the player-count table.
type SizeTier struct {
	// MaxPlayers is the inclusive upper bound for this tier.
	MaxPlayers     int
	TasksPerPlayer int
	TargetScore    float64
	// ChallengeShare is the fraction of the shared challenge list a player
	// has to win at gold to reach the race-mode threshold.
	ChallengeShare float64
}

// Defaults configures every new game. The server builds one from flags.
type Defaults struct {
	SwapAllowance         int
	DisputeTimeout        time.Duration
	TieBreak              TieBreak
	NegativeScoring       bool
	MaxPlayers            int
	GoldPoints            int
	SilverPoints          int
	MaxSilverPerChallenge int
	ChallengeCount        int
	// SizeTiers must be sorted by MaxPlayers. The last tier covers every
	// larger game.
	SizeTiers []SizeTier
}

// DefaultDefaults returns the stock game configuration.
func DefaultDefaults() Defaults {
	return Defaults{
		SwapAllowance:         2,
		DisputeTimeout:        2 * time.Minute,
		TieBreak:              TieBreakAccept,
		MaxPlayers:            10,
		GoldPoints:            3,
		SilverPoints:          1,
		MaxSilverPerChallenge: 3,
		ChallengeCount:        10,
		SizeTiers: []SizeTier{
			{MaxPlayers: 3, TasksPerPlayer: 6, TargetScore: 4, ChallengeShare: 0.6},
			{MaxPlayers: 6, TasksPerPlayer: 8, TargetScore: 5, ChallengeShare: 0.7},
			{MaxPlayers: math.MaxInt, TasksPerPlayer: 10, TargetScore: 6, ChallengeShare: 0.8},
		},
	}
}

func (d Defaults) settings() Settings {
	return Settings{
		SwapAllowance:         d.SwapAllowance,
		DisputeTimeout:        d.DisputeTimeout,
		TieBreak:              d.TieBreak,
		NegativeScoring:       d.NegativeScoring,
		MaxPlayers:            d.MaxPlayers,
		TargetScore:           d.tier(1).TargetScore,
		MaxSilverPerChallenge: d.MaxSilverPerChallenge,
	}
}

func (d Defaults) tier(players int) SizeTier {
	if len(d.SizeTiers) == 0 {
		return DefaultDefaults().tier(players)
	}
	for _, t := range d.SizeTiers {
		if players <= t.MaxPlayers {
			return t
		}
	}
	return d.SizeTiers[len(d.SizeTiers)-1]
}

// TasksPerPlayer returns how many stealth tasks each player is dealt.
func (d Defaults) TasksPerPlayer(players int) int {
	return d.tier(players).TasksPerPlayer
}

// TargetScore returns the stealth-mode score that wins the game.
func (d Defaults) TargetScore(players int) float64 {
	return d.tier(players).TargetScore
}

// WinThreshold returns the race-mode challenge score that wins the game.
// It never decreases as players are added.
func (d Defaults) WinThreshold(players int) int {
	share := d.tier(players).ChallengeShare
	// Clamp against a misconfigured table so the threshold stays monotonic.
	for _, t := range d.SizeTiers {
		if t.MaxPlayers < players && t.ChallengeShare > share {
			share = t.ChallengeShare
		}
	}
	needed := int(math.Ceil(float64(d.ChallengeCount) * share))
	if needed < 1 {
		needed = 1
	}
	return needed * d.GoldPoints
}
