package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/portwatch/internal/storage"
)

type statusStore interface {
	All(ctx context.Context) ([]storage.FailureRecord, error)
}

func executeStatus(cmd *cobra.Command, db statusStore, threshold int) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := db.All(ctx)
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No failing endpoints.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tFAILURES\tSTATE\tFIRST FAILED\tLAST FAILED")
	for _, r := range records {
		state := "failing"
		if r.ConsecutiveFailures >= threshold {
			state = "down"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			r.Endpoint,
			r.ConsecutiveFailures,
			state,
			r.FirstFailedAt.Local().Format("2006-01-02 15:04:05"),
			r.LastFailedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
	return nil
}
