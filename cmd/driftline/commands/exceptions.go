package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newExceptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exceptions",
		Short: "Inspect and purge the exception ledger",
		Long: `Inspect the append-only exception ledger.

Every failure recorded during snapshot processing lands here with the
failure location, message, and stack trace. Records carry a TTL after
which they are eligible for purging.`,
	}

	cmd.AddCommand(newExceptionsListCommand())
	cmd.AddCommand(newExceptionsPurgeCommand())

	return cmd
}

func newExceptionsListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded exceptions, newest first",
		Example: `  # Show the 20 most recent exceptions
  driftline exceptions list

  # Page through older records
  driftline exceptions list --limit 50 --offset 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			records, err := a.engine.ListExceptions(ctx, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(records)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSOURCE\tOCCURRED\tTYPE\tMESSAGE")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.ID, rec.Source, rec.Occurred.Format("2006-01-02 15:04:05"), rec.Type, rec.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of records to skip")

	return cmd
}

func newExceptionsPurgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete exceptions whose TTL has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if err := a.engine.PurgeExpiredExceptions(ctx, time.Now().UTC()); err != nil {
				return err
			}

			log.Info().Msg("Expired exceptions purged")
			return nil
		},
	}

	return cmd
}
