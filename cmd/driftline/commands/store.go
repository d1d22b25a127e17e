package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driftline/driftline/pkg/engine"
	"github.com/driftline/driftline/pkg/stores"
)

func newStoreCommand() *cobra.Command {
	var (
		kind      string
		region    string
		account   string
		name      string
		arn       string
		inactive  bool
		ephemeral bool
		issues    []string
	)

	cmd := &cobra.Command{
		Use:   "store <config.json>",
		Short: "Store a configuration snapshot",
		Long: `Store one configuration snapshot for a resource.

The positional argument is a JSON file holding the raw configuration
payload. The resource identity is the (kind, region, account, name)
tuple; the item is created on first sight.

Every snapshot appends a new revision; callers decide whether a store
is warranted by comparing the item's stored hashes first. Pass
--ephemeral when the change is known to be confined to ephemeral
fields: the latest revision is overwritten in place instead of
appending a new one.

Audit issues are passed as --issue "type:score:notes" and replace the
item's previous issue set; unchanged issues keep their row and any
justification.`,
		Example: `  # Store a security group snapshot
  driftline store sg.json --kind securitygroup --region us-east-1 --account production --name web-sg

  # Record an ephemeral-only change
  driftline store sg.json --kind securitygroup --region us-east-1 --account production --name web-sg --ephemeral

  # Store with audit issues
  driftline store sg.json --kind securitygroup --region us-east-1 --account production --name web-sg \
    --issue "open_port:7:port 22 open to 0.0.0.0/0"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			var payload map[string]any
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("failed to parse config file: %w", err)
			}

			newIssues, err := parseIssues(issues)
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			in := engine.StoreInput{
				Kind:      kind,
				Region:    region,
				Account:   account,
				Name:      name,
				Active:    !inactive,
				Config:    payload,
				ARN:       arn,
				NewIssues: newIssues,
				Ephemeral: ephemeral,
			}
			if err := a.engine.Store(ctx, in); err != nil {
				a.engine.RecordException(ctx, "store", []string{kind, account, region, name}, err, nil)
				return err
			}

			log.Info().
				Str("technology", kind).
				Str("account", account).
				Str("region", region).
				Str("item", name).
				Msg("Snapshot stored")
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "technology kind (e.g. securitygroup)")
	cmd.Flags().StringVar(&region, "region", "", "region of the resource")
	cmd.Flags().StringVar(&account, "account", "", "account name")
	cmd.Flags().StringVar(&name, "name", "", "resource name")
	cmd.Flags().StringVar(&arn, "arn", "", "resource ARN (optional)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "record the resource as deleted")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "overwrite the latest revision in place")
	cmd.Flags().StringArrayVar(&issues, "issue", nil, "audit issue as type:score:notes (repeatable)")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("region")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("name")

	return cmd
}

// parseIssues converts "type:score:notes" flag values into issues. Notes may
// contain colons; only the first two separators are structural.
func parseIssues(raw []string) ([]*stores.Issue, error) {
	issues := make([]*stores.Issue, 0, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(r, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid issue %q: expected type:score:notes", r)
		}
		score, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid issue score in %q: %w", r, err)
		}
		issues = append(issues, &stores.Issue{
			IssueType: parts[0],
			Score:     score,
			Notes:     parts[2],
		})
	}
	return issues, nil
}
