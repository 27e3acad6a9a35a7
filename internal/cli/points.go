package cli

import (
	"github.com/spf13/cobra"
)

func newPointsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Award, redeem and read point balances",
	}

	award := &cobra.Command{
		Use:   "award USER AMOUNT",
		Short: "Credit points to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseInt("amount", args[1])
			if err != nil {
				return err
			}
			acct, err := clientFor(cmd).AwardPoints(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, acct)
		},
	}

	redeem := &cobra.Command{
		Use:   "redeem USER AMOUNT",
		Short: "Debit points from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseInt("amount", args[1])
			if err != nil {
				return err
			}
			acct, err := clientFor(cmd).RedeemPoints(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, acct)
		},
	}

	get := &cobra.Command{
		Use:   "get USER",
		Short: "Read a user's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := clientFor(cmd).Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, acct)
		},
	}

	cmd.AddCommand(award, redeem, get)
	return cmd
}
