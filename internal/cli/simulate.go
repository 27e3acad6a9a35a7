package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/kudos/internal/client"
	"github.com/okian/kudos/pkg/logger"
)

func newSimulateCommand(log logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Submit synthetic points events and verify the balances",
		Long: `simulate generates points_awarded events for a pool of random users,
submits them concurrently to POST /events (resubmitting a share of them to
exercise deduplication) and then polls the balances until they match the
accepted events or --verify-timeout passes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd, log.Named("simulate"))
		},
	}
	cmd.Flags().Int("users", 100, "Number of distinct users")
	cmd.Flags().Int("events", 10_000, "Number of events to submit")
	cmd.Flags().Int("workers", runtime.NumCPU()*2, "Concurrent submitters")
	cmd.Flags().Int64("max-amount", 50, "Largest points amount per event")
	cmd.Flags().Float64("dup-rate", 0.05, "Share of events submitted twice")
	cmd.Flags().Duration("verify-timeout", time.Minute, "How long to wait for balances to converge; 0 skips verification")
	return cmd
}

func runSimulate(cmd *cobra.Command, log logger.Logger) error {
	var s client.Simulation
	s.Users, _ = cmd.Flags().GetInt("users")
	s.Events, _ = cmd.Flags().GetInt("events")
	s.Workers, _ = cmd.Flags().GetInt("workers")
	s.MaxAmount, _ = cmd.Flags().GetInt64("max-amount")
	s.DupRate, _ = cmd.Flags().GetFloat64("dup-rate")
	verifyTimeout, _ := cmd.Flags().GetDuration("verify-timeout")

	ctx := cmd.Context()
	c := clientFor(cmd)

	if err := c.Health(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	rep, err := c.Simulate(ctx, s, log)
	if err != nil {
		return err
	}
	out := map[string]any{
		"submitted":  rep.Submitted,
		"accepted":   rep.Accepted,
		"duplicates": rep.Duplicates,
		"failed":     rep.Failed,
		"duration":   rep.Duration.String(),
	}

	if verifyTimeout > 0 {
		vctx, cancel := context.WithTimeout(ctx, verifyTimeout)
		defer cancel()
		mismatched, err := c.Verify(vctx, rep.Expected, 250*time.Millisecond)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		out["mismatched"] = mismatched
		if len(mismatched) > 0 {
			_ = printJSON(cmd, out)
			return fmt.Errorf("%d users did not reach their expected balance", len(mismatched))
		}
	}
	return printJSON(cmd, out)
}
