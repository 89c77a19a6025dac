package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/config"
	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	Limit   int
}

// TraceResult is the journal history of one order, or of the most recent
// changes when no order is given.
type TraceResult struct {
	OrderID  int64         `json:"order_id,omitempty"`
	Timeline []store.Entry `json:"timeline"`
	Stats    TraceStats    `json:"stats"`
}

// TraceStats summarizes a timeline by change source.
type TraceStats struct {
	Total     int `json:"total"`
	Remote    int `json:"remote"`
	Local     int `json:"local"`
	Confirmed int `json:"confirmed"`
	Rollbacks int `json:"rollbacks"`
	Snapshot  int `json:"snapshot"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [order-id]",
		Short: "Show journaled changes",
		Long: `Show the journaled history of an order, oldest first, or the most
recent changes across all orders.

Each line shows the logical sequence number, the source of the change
(remote, local, confirm, rollback, snapshot) and the status transition.

Examples:
  ordersync trace 42 --journal ./orders.db
  ordersync trace --journal ./orders.db --limit 20
  ordersync trace 42 --journal ./orders.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 1 {
				parsed, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || parsed <= 0 {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid order id %q", args[0]))
				}
				id = parsed
			}
			return runTrace(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (defaults to journal.path from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "number of recent changes when no order is given")

	return cmd
}

func runTrace(opts *TraceOptions, orderID int64, cmd *cobra.Command) error {
	st, err := openExistingJournal(opts.RootOptions, opts.Journal)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	var entries []store.Entry
	if orderID != 0 {
		entries, err = st.Timeline(ctx, orderID)
	} else {
		entries, err = st.Recent(ctx, opts.Limit)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := TraceResult{OrderID: orderID, Timeline: entries, Stats: traceStats(entries)}
	if result.Timeline == nil {
		result.Timeline = []store.Entry{}
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return formatter.Success(result)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

// openExistingJournal opens the journal named by flag or configuration.
// Unlike run, it refuses to create a new file.
func openExistingJournal(opts *RootOptions, flagPath string) (*store.Store, error) {
	path := flagPath
	if path == "" {
		file, err := config.Load(opts.Config)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
		}
		path = file.Journal.Path
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no journal: pass --journal or set journal.path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "journal not found", err)
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return st, nil
}

func traceStats(entries []store.Entry) TraceStats {
	s := TraceStats{Total: len(entries)}
	for _, e := range entries {
		switch e.Source {
		case engine.SourceRemote:
			s.Remote++
		case engine.SourceLocal:
			s.Local++
		case engine.SourceConfirm:
			s.Confirmed++
		case engine.SourceRollback:
			s.Rollbacks++
		case engine.SourceSnapshot:
			s.Snapshot++
		}
	}
	return s
}

// outputTraceText prints the timeline and its stats.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	if result.OrderID != 0 {
		fmt.Fprintf(w, "Trace for order #%d\n", result.OrderID)
	} else {
		fmt.Fprintln(w, "Recent changes")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no changes)")
	}
	for _, e := range result.Timeline {
		from := string(e.From)
		if from == "" {
			from = "NEW"
		}
		fmt.Fprintf(w, "  [%d] #%d %-8s %s -> %s rev=%d total=%s\n",
			e.Seq, e.OrderID, e.Source, from, e.To, e.Revision, e.Total.StringFixed(2))
		if verbose {
			fmt.Fprintf(w, "       at %s fingerprint %s\n", e.RecordedAt.Format("2006-01-02T15:04:05Z"), truncateID(e.Fingerprint))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total:     %d\n", result.Stats.Total)
	fmt.Fprintf(w, "  Remote:    %d\n", result.Stats.Remote)
	fmt.Fprintf(w, "  Local:     %d\n", result.Stats.Local)
	fmt.Fprintf(w, "  Confirmed: %d\n", result.Stats.Confirmed)
	fmt.Fprintf(w, "  Rollbacks: %d\n", result.Stats.Rollbacks)
	fmt.Fprintf(w, "  Snapshot:  %d\n", result.Stats.Snapshot)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
