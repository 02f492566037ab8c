package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/portwatch/internal/checker"
	"github.com/hazz-dev/portwatch/internal/config"
)

func executeCheck(cmd *cobra.Command, cfg *config.Config) error {
	return runChecks(cmd.Context(), cmd.OutOrStdout(), cfg.Endpoints(), checker.NewTCPProber(cfg.ProbeTimeout.Duration))
}

// runChecks probes every endpoint once and prints a table. It never touches
// the failure store or sends mail.
func runChecks(ctx context.Context, out io.Writer, endpoints []config.Endpoint, prober checker.Prober) error {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]checker.Result, len(endpoints))
	var wg sync.WaitGroup

	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep config.Endpoint) {
			defer wg.Done()
			results[i] = prober.Probe(ctx, ep)
		}(i, ep)
	}
	wg.Wait()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tSTATUS\tRESPONSE\tERROR")
	down := 0
	for i, r := range results {
		resp := "-"
		if r.ResponseTime > 0 {
			resp = r.ResponseTime.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", endpoints[i], r.Status, resp, r.Error)
		if r.Status != checker.StatusUp {
			down++
		}
	}
	w.Flush()

	if down > 0 {
		return fmt.Errorf("%d of %d endpoints are down", down, len(endpoints))
	}
	return nil
}
