package cli

import (
	"github.com/spf13/cobra"
)

func newActivityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity USER GOAL",
		Short: "Record a completed goal task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseTimeFlag(cmd, "at")
			if err != nil {
				return err
			}
			res, err := clientFor(cmd).Activity(cmd.Context(), args[0], args[1], at)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("at", "", "Activity time as RFC3339 (default now)")
	return cmd
}

func newStreakCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "streak USER GOAL",
		Short: "Read a goal streak",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := clientFor(cmd).Streak(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
}

func newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot USER",
		Short: "Read a user's points, badges and streaks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := clientFor(cmd).Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
}

func newLeaderboardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Read the top accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := clientFor(cmd).Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
	cmd.Flags().Int("limit", 10, "Number of entries")
	return cmd
}

func newSweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired badges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseTimeFlag(cmd, "now")
			if err != nil {
				return err
			}
			n, err := clientFor(cmd).Sweep(cmd.Context(), now)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"removed": n})
		},
	}
	cmd.Flags().String("now", "", "Reference time as RFC3339 (default server clock)")
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Read server statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := clientFor(cmd).Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}
