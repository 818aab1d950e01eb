package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/whogotwho/game"
)

type Config struct {
	bind           string
	db             string
	disputeTimeout time.Duration
	goldPoints     int
	maxPlayers     int
	maxSilver      int
	negativeScore  bool
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	proofDir       string
	proofMaxSize   int
	sessionTimeout time.Duration
	silverPoints   int
	swapAllowance  int
	tieBreak       string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.swapAllowance < 0 {
		return fmt.Errorf("invalid swap allowance (must be 0 or more): %d", c.swapAllowance)
	}
	if c.maxPlayers < 2 {
		return fmt.Errorf("invalid max players (must be at least 2): %d", c.maxPlayers)
	}
	if c.maxSilver < 0 {
		return fmt.Errorf("invalid max silver (must be 0 or more): %d", c.maxSilver)
	}
	if c.goldPoints < 1 || c.silverPoints < 0 || c.silverPoints > c.goldPoints {
		return fmt.Errorf("invalid challenge points (gold %d, silver %d)", c.goldPoints, c.silverPoints)
	}
	if c.disputeTimeout <= 0 {
		return fmt.Errorf("invalid dispute timeout: %s", c.disputeTimeout)
	}
	switch game.TieBreak(c.tieBreak) {
	case game.TieBreakAccept, game.TieBreakReject:
	default:
		return fmt.Errorf("invalid tie break (must be accept or reject): %q", c.tieBreak)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// gameDefaults builds the per-game configuration from flags, keeping the
// stock player-count table.
func (c *Config) gameDefaults() game.Defaults {
	d := game.DefaultDefaults()
	d.SwapAllowance = c.swapAllowance
	d.DisputeTimeout = c.disputeTimeout
	d.TieBreak = game.TieBreak(c.tieBreak)
	d.NegativeScoring = c.negativeScore
	d.MaxPlayers = c.maxPlayers
	d.GoldPoints = c.goldPoints
	d.SilverPoints = c.silverPoints
	d.MaxSilverPerChallenge = c.maxSilver
	return d
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WHOGOTWHO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "whogotwho",
		Short:         "Serves Who Got Who, a party game of sneaky tasks and photo challenges.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WHOGOTWHO_BIND)")
	fs.StringVar(&cfg.db, "db", "", "path to sqlite database; games are kept in memory when unset (env: WHOGOTWHO_DB)")
	fs.DurationVar(&cfg.disputeTimeout, "dispute-timeout", 2*time.Minute, "time before an undecided dispute is settled (env: WHOGOTWHO_DISPUTE_TIMEOUT)")
	fs.IntVar(&cfg.goldPoints, "gold-points", 3, "points for the first completion of a challenge (env: WHOGOTWHO_GOLD_POINTS)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 10, "maximum players per game (env: WHOGOTWHO_MAX_PLAYERS)")
	fs.IntVar(&cfg.maxSilver, "max-silver", 3, "silver completions allowed per challenge, 0 for unlimited (env: WHOGOTWHO_MAX_SILVER)")
	fs.BoolVar(&cfg.negativeScore, "negative-scoring", false, "take points back when a dispute is lost (env: WHOGOTWHO_NEGATIVE_SCORING)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time before disconnected lobby players are removed (env: WHOGOTWHO_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WHOGOTWHO_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WHOGOTWHO_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WHOGOTWHO_PROFILE)")
	fs.StringVar(&cfg.proofDir, "proof-dir", "", "directory for challenge photos; kept in memory when unset (env: WHOGOTWHO_PROOF_DIR)")
	fs.IntVar(&cfg.proofMaxSize, "proof-max-size", 5<<20, "largest accepted challenge photo, in bytes (env: WHOGOTWHO_PROOF_MAX_SIZE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are closed and ended games removed (env: WHOGOTWHO_SESSION_TIMEOUT)")
	fs.IntVar(&cfg.silverPoints, "silver-points", 1, "points for later completions of a challenge (env: WHOGOTWHO_SILVER_POINTS)")
	fs.IntVar(&cfg.swapAllowance, "swap-allowance", 2, "task swaps each player gets per game (env: WHOGOTWHO_SWAP_ALLOWANCE)")
	fs.StringVar(&cfg.tieBreak, "tie-break", "accept", "how a tied dispute vote is settled: accept or reject (env: WHOGOTWHO_TIE_BREAK)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WHOGOTWHO_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WHOGOTWHO_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WHOGOTWHO_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WHOGOTWHO_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("whogotwho v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
