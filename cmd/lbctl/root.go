package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/artwall/internal/config"
	"github.com/sakif/artwall/internal/server"
	"github.com/sakif/artwall/internal/service"
)

type options struct {
	entity  string
	scope   string
	period  string
	limit   int
	metric  string
	timeout time.Duration
	quiet   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "lbctl",
		Short:        "Leaderboard maintenance for artwall",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.entity, "entity", "e", "art", "board entity: art, creator or creatorlikes")
	root.PersistentFlags().StringVarP(&opts.scope, "scope", "s", "all", "daily, weekly, monthly or all")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "give up after this long")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors")

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute a board from the like counters and artwork metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, boards *service.LeaderboardService) (interface{}, error) {
				return boards.Rebuild(ctx, opts.entity, opts.scope, opts.period)
			})
		},
	}
	rebuild.Flags().StringVarP(&opts.period, "period", "p", "", "period key; empty means the current one")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Archive and clear a board; --period '*' clears every period of the scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, boards *service.LeaderboardService) (interface{}, error) {
				return boards.Reset(ctx, opts.entity, opts.scope, opts.period)
			})
		},
	}
	reset.Flags().StringVarP(&opts.period, "period", "p", "", "period key or '*'")
	reset.MarkFlagRequired("period")

	periods := &cobra.Command{
		Use:   "periods",
		Short: "List the periods that have a live or archived board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, boards *service.LeaderboardService) (interface{}, error) {
				return boards.Periods(ctx, opts.entity, opts.scope)
			})
		},
	}

	top := &cobra.Command{
		Use:   "top",
		Short: "Print a board the way the API serves it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, boards *service.LeaderboardService) (interface{}, error) {
				return boards.Top(ctx, service.BoardQuery{
					Entity: opts.entity,
					Scope:  opts.scope,
					Period: opts.period,
					Limit:  opts.limit,
					Metric: opts.metric,
				})
			})
		},
	}
	top.Flags().StringVarP(&opts.period, "period", "p", "", "period key; empty means the current one")
	top.Flags().IntVarP(&opts.limit, "limit", "n", service.DefaultBoardLimit, "number of entries")
	top.Flags().StringVar(&opts.metric, "metric", "", "creators only: uploads or likes")

	root.AddCommand(rebuild, reset, periods, top)
	return root
}

type job func(ctx context.Context, boards *service.LeaderboardService) (interface{}, error)

// run opens the stores, runs fn and prints its result as JSON.
func run(cmd *cobra.Command, opts *options, fn job) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if opts.quiet {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	deps, err := server.OpenDeps(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}
	defer deps.Close()

	boards := service.NewLeaderboardService(deps.Artworks, deps.Archive, deps.Store, deps.Calc, logger)
	out, err := fn(ctx, boards)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
