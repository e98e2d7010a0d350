package cmd

import (
	"context"
	"flag"
	"os"
	"text/tabwriter"
	"time"

	"grimm.is/zonefwd/internal/audit"
	"grimm.is/zonefwd/internal/brand"
	"grimm.is/zonefwd/internal/logging"
)

// RunLog handles the "log" command: recent audit events, newest first.
func RunLog(args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)

	var (
		dbPath, kind, network string
		limit                 int
		since                 time.Duration
	)

	fs.StringVar(&dbPath, "db", brand.GetAuditDBPath(), "Audit database path")
	fs.StringVar(&kind, "kind", "", "Filter by event kind (control, transition)")
	fs.StringVar(&kind, "k", "", "Alias for -kind")
	fs.StringVar(&network, "network", "", "Filter by network name")
	fs.IntVar(&limit, "lines", 50, "Number of events to show")
	fs.IntVar(&limit, "n", 50, "Alias for -lines")
	fs.DurationVar(&since, "since", 0, "Only show events newer than this (e.g. 1h)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := audit.NewStore(dbPath, 0, logging.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	q := audit.Query{Kind: kind, Network: network, Limit: limit}
	if since > 0 {
		q.Since = time.Now().Add(-since)
	}
	events, err := store.Query(context.Background(), q)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	Printer.Fprintln(w, "TIME\tKIND\tACTION\tNETWORK\tRESULT\tREQUEST")
	for _, e := range events {
		result := "ok"
		if !e.Success {
			result = "error: " + e.Error
		}
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Kind, e.Action, dash(e.Network), result, dash(e.RequestID))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
