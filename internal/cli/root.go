// Package cli implements the kudosctl command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/kudos/internal/client"
	"github.com/okian/kudos/pkg/logger"
)

const (
	defaultURL     = "http://localhost:9080"
	defaultTimeout = 30 * time.Second
)

// NewRootCommand builds the kudosctl command tree. log receives progress
// output from long-running commands.
func NewRootCommand(log logger.Logger) *cobra.Command {
	if log == nil {
		log = logger.Nop()
	}
	root := &cobra.Command{
		Use:   "kudosctl",
		Short: "Drive a kudos progression server",
		Long: `kudosctl talks to a kudos server over HTTP. It awards and redeems
points, records badge progress and goal activity, reads snapshots and the
leaderboard, and can generate synthetic event load.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("url", defaultURL, "Base URL of the server")
	root.PersistentFlags().Duration("timeout", defaultTimeout, "HTTP request timeout")

	root.AddCommand(
		newPointsCommand(),
		newBadgeCommand(),
		newActivityCommand(),
		newStreakCommand(),
		newSnapshotCommand(),
		newLeaderboardCommand(),
		newSweepCommand(),
		newStatsCommand(),
		newSimulateCommand(log),
	)
	return root
}

// clientFor builds a client from the persistent flags.
func clientFor(cmd *cobra.Command) *client.Client {
	url, _ := cmd.Flags().GetString("url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return client.New(url, client.WithTimeout(timeout))
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseInt(name, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

// parseTimeFlag reads an optional RFC3339 flag; empty yields the zero time.
func parseTimeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: must be RFC3339", name)
	}
	return t, nil
}
