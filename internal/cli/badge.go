package cli

import (
	"github.com/spf13/cobra"

	"github.com/okian/kudos/internal/client"
)

func newBadgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badge",
		Short: "Grant badges and record badge progress",
	}

	progress := &cobra.Command{
		Use:   "progress USER TYPE INCREMENT",
		Short: "Add progress to a badge",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			inc, err := parseInt("increment", args[2])
			if err != nil {
				return err
			}
			tr, err := clientFor(cmd).BadgeProgress(cmd.Context(), args[0], args[1], int(inc))
			if err != nil {
				return err
			}
			return printJSON(cmd, tr)
		},
	}

	award := &cobra.Command{
		Use:   "award USER TYPE",
		Short: "Grant a badge, or upgrade it one level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a client.BadgeAward
			a.Level, _ = cmd.Flags().GetString("level")
			a.Goal, _ = cmd.Flags().GetInt("goal")
			a.ExpiresAt, _ = cmd.Flags().GetString("expires-at")
			tr, err := clientFor(cmd).AwardBadge(cmd.Context(), args[0], args[1], a)
			if err != nil {
				return err
			}
			return printJSON(cmd, tr)
		},
	}
	award.Flags().String("level", "", "Initial level of a new badge (bronze, silver, gold)")
	award.Flags().Int("goal", 0, "Progress per level of a new badge")
	award.Flags().String("expires-at", "", "Expiry as RFC3339")

	get := &cobra.Command{
		Use:   "get USER TYPE",
		Short: "Read a badge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := clientFor(cmd).Badge(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, b)
		},
	}

	cmd.AddCommand(progress, award, get)
	return cmd
}
