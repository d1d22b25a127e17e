package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driftline/driftline/pkg/stores"
)

func newAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage monitored accounts",
		Long: `Manage the accounts whose resources are tracked.

Snapshots can only be stored against accounts registered here; storing
against an unknown account is rejected.`,
	}

	cmd.AddCommand(newAccountAddCommand())
	cmd.AddCommand(newAccountListCommand())

	return cmd
}

func newAccountAddCommand() *cobra.Command {
	var (
		name       string
		number     string
		notes      string
		inactive   bool
		thirdParty bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new account",
		Example: `  # Register an account
  driftline account add --name production --number 123456789012

  # Register a third-party account with notes
  driftline account add --name vendor --number 000123456789 --third-party --notes "payment processor"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			account := &stores.Account{
				Name:       name,
				Number:     number,
				Active:     !inactive,
				ThirdParty: thirdParty,
			}
			if notes != "" {
				account.Notes = &notes
			}

			if err := a.store.CreateAccount(ctx, a.store.Handle(), account); err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}

			log.Info().Str("name", name).Int64("id", account.ID).Msg("Account registered")
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "account name")
	cmd.Flags().StringVar(&number, "number", "", "account number")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "register as inactive")
	cmd.Flags().BoolVar(&thirdParty, "third-party", false, "mark as a third-party account")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("number")

	return cmd
}

func newAccountListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			accounts, err := a.store.ListAccounts(ctx, a.store.Handle())
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(accounts)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tNUMBER\tACTIVE\tTHIRD-PARTY")
			for _, acct := range accounts {
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\n",
					acct.ID, acct.Name, acct.Number, acct.Active, acct.ThirdParty)
			}
			return w.Flush()
		},
	}

	return cmd
}
