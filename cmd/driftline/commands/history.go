package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		kind       string
		region     string
		account    string
		name       string
		showConfig bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the revision history of one item",
		Long: `Show the recorded revisions for one resource, newest first.

An unknown item yields an empty history, not an error.`,
		Example: `  # Show revision history
  driftline history --kind securitygroup --region us-east-1 --account production --name web-sg

  # Include the stored configuration payloads
  driftline history --kind securitygroup --region us-east-1 --account production --name web-sg --show-config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			revisions, err := a.engine.Get(ctx, kind, region, account, name)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(revisions)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tACTIVE\tCREATED\tLAST EPHEMERAL CHANGE")
			for _, rev := range revisions {
				touched := "-"
				if rev.DateLastEphemeralChange != nil {
					touched = rev.DateLastEphemeralChange.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%d\t%t\t%s\t%s\n",
					rev.ID, rev.Active, rev.DateCreated.Format("2006-01-02 15:04:05"), touched)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if showConfig {
				for _, rev := range revisions {
					fmt.Printf("\n--- revision %d ---\n%s\n", rev.ID, rev.Config)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "technology kind")
	cmd.Flags().StringVar(&region, "region", "", "region of the resource")
	cmd.Flags().StringVar(&account, "account", "", "account name")
	cmd.Flags().StringVar(&name, "name", "", "resource name")
	cmd.Flags().BoolVar(&showConfig, "show-config", false, "print each revision's configuration")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("region")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("name")

	return cmd
}
