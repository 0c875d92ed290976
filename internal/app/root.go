package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/winkmatch/backend/internal/config"
	"github.com/winkmatch/backend/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Store      string
}

// NewRootCommand creates the root command for the winkmatch binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "winkmatch",
		Short: "winkmatch - proximity and time based wink matching",
		Long: `winkmatch stores geolocated winks and pairs up users whose winks were
dropped close together in space and time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file (overrides WINKMATCH_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "store backend (postgres|memory), overrides config")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// load resolves configuration and a logger writing to w.
func (o *RootOptions) load(w io.Writer) (config.Config, *slog.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.LoadFrom(o.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, nil, err
	}

	if o.Store != "" {
		cfg.Store = o.Store
		if err := cfg.Validate(); err != nil {
			return config.Config{}, nil, err
		}
	}

	logger, err := logging.NewLogger(w, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

type sweepOutput struct {
	SignalsChecked  int `json:"signalsChecked"`
	MatchesCreated  int `json:"matchesCreated"`
	PartialExpiries int `json:"partialExpiries"`
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one batch sweep over all active winks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			rt, cleanup, err := buildRuntime(cmd.Context(), cfg)
			defer cleanup()
			if err != nil {
				return err
			}

			ctx := logging.WithLogger(cmd.Context(), logger)
			result, err := rt.engine.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			return writeJSON(cmd.OutOrStdout(), sweepOutput{
				SignalsChecked:  result.SignalsChecked,
				MatchesCreated:  result.MatchesCreated,
				PartialExpiries: result.PartialExpiries,
			})
		},
	}
}

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	SignalID string
	UserID   string
}

type checkMatchOutput struct {
	MatchID          string  `json:"matchId"`
	OtherUserID      string  `json:"otherUserId"`
	DistanceMeters   float64 `json:"distance"`
	TimeDeltaMinutes float64 `json:"timeDiffMinutes"`
	Created          bool    `json:"created"`
	PartialExpiry    bool    `json:"partialExpiry,omitempty"`
}

type checkDiagnosticOutput struct {
	SignalID         string  `json:"signalId"`
	UserID           string  `json:"userId"`
	DistanceMeters   float64 `json:"distance"`
	MaxRadiusMeters  float64 `json:"maxRadius"`
	TimeDeltaMinutes float64 `json:"timeDiffMinutes"`
	WithinRadius     bool    `json:"isWithinRadius"`
	WithinTime       bool    `json:"isWithinTime"`
	IsMatch          bool    `json:"isMatch"`
}

type checkOutput struct {
	Matches            []checkMatchOutput      `json:"matches"`
	Diagnostics        []checkDiagnosticOutput `json:"diagnostics"`
	TotalActiveSignals int                     `json:"totalActiveSignals"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check one wink against every active wink",
		Long: `Check one wink against every active wink from other users.

Compatible pairs are matched and both winks expire. Candidates within the
debug radius are reported whether or not they matched.

Example:
  winkmatch check --signal 2b1e... --user alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.SignalID, "signal", "", "wink id to check")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "owner of the wink")
	_ = cmd.MarkFlagRequired("signal")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	cfg, logger, err := opts.load(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	rt, cleanup, err := buildRuntime(cmd.Context(), cfg)
	defer cleanup()
	if err != nil {
		return err
	}

	ctx := logging.WithLogger(cmd.Context(), logger)
	result, err := rt.engine.CheckOne(ctx, opts.SignalID, opts.UserID)
	if err != nil {
		return fmt.Errorf("check %s: %w", opts.SignalID, err)
	}

	out := checkOutput{
		Matches:            make([]checkMatchOutput, 0, len(result.Matches)),
		Diagnostics:        make([]checkDiagnosticOutput, 0, len(result.Diagnostics)),
		TotalActiveSignals: result.ActiveCandidates,
	}
	for _, m := range result.Matches {
		out.Matches = append(out.Matches, checkMatchOutput{
			MatchID:          m.MatchID,
			OtherUserID:      m.OtherUserID,
			DistanceMeters:   m.DistanceMeters,
			TimeDeltaMinutes: m.TimeDeltaMinutes,
			Created:          m.Created,
			PartialExpiry:    m.PartialExpiry,
		})
	}
	for _, d := range result.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, checkDiagnosticOutput{
			SignalID:         d.CandidateSignalID,
			UserID:           d.CandidateUserID,
			DistanceMeters:   d.DistanceMeters,
			MaxRadiusMeters:  d.MaxRadiusMeters,
			TimeDeltaMinutes: d.TimeDeltaMinutes,
			WithinRadius:     d.SpatialPass,
			WithinTime:       d.TemporalPass,
			IsMatch:          d.IsMatch,
		})
	}

	return writeJSON(cmd.OutOrStdout(), out)
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply or list SQL migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}
			return runMigrations(cmd.Context(), cfg, command, cmd.OutOrStdout())
		},
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <name>",
		Short: "Apply a seed file such as seeds/dev_seed.sql",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
