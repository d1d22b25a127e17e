package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newIssuesCommand() *cobra.Command {
	var (
		kind    string
		region  string
		account string
		name    string
	)

	cmd := &cobra.Command{
		Use:   "issues",
		Short: "Show the current audit issues of one item",
		Long: `Show the audit issues currently attached to one resource.

Issues are replaced wholesale on each snapshot store; unchanged issues
keep their row and any justification. An unknown item yields an empty
set, not an error.`,
		Example: `  # Show issues for a security group
  driftline issues --kind securitygroup --region us-east-1 --account production --name web-sg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			issues, err := a.engine.GetAuditIssues(ctx, kind, region, account, name)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(issues)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCORE\tTYPE\tJUSTIFIED\tNOTES")
			for _, issue := range issues {
				fmt.Fprintf(w, "%d\t%d\t%s\t%t\t%s\n",
					issue.ID, issue.Score, issue.IssueType, issue.Justified, issue.Notes)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "technology kind")
	cmd.Flags().StringVar(&region, "region", "", "region of the resource")
	cmd.Flags().StringVar(&account, "account", "", "account name")
	cmd.Flags().StringVar(&name, "name", "", "resource name")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("region")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("name")

	return cmd
}
