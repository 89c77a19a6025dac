package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
}

// ReplayResult is the outcome of replaying a journal.
type ReplayResult struct {
	Entries    int             `json:"entries"`
	Orders     []ReplayedOrder `json:"orders"`
	Violations []string        `json:"violations,omitempty"`
	Consistent bool            `json:"consistent"`
}

// ReplayedOrder is the last journaled state of one order.
type ReplayedOrder struct {
	ID       int64        `json:"id"`
	Status   order.Status `json:"status"`
	Revision int64        `json:"revision"`
	Changes  int          `json:"changes"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the journal and check its consistency",
		Long: `Replay every journaled change in sequence order and rebuild the last
known state of each order.

The replay checks that sequence numbers strictly increase and that no
order's revision ever decreases. Exits 1 when either check fails.

Examples:
  ordersync replay --journal ./orders.db
  ordersync replay --journal ./orders.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (defaults to journal.path from config)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	st, err := openExistingJournal(opts.RootOptions, opts.Journal)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := replayJournal(context.Background(), st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay journal", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		if !result.Consistent {
			if err := formatter.Error(ErrCodeJournal, "journal is inconsistent", result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "journal is inconsistent")
		}
		return formatter.Success(result)
	}

	outputReplayText(cmd.OutOrStdout(), result)
	if !result.Consistent {
		return NewExitError(ExitFailure, fmt.Sprintf("journal is inconsistent: %d violation(s)", len(result.Violations)))
	}
	return nil
}

// replayJournal folds the journal into per-order state.
func replayJournal(ctx context.Context, st *store.Store) (ReplayResult, error) {
	var result ReplayResult
	state := make(map[int64]*ReplayedOrder)
	var lastSeq int64

	err := st.Replay(ctx, func(e store.Entry) error {
		result.Entries++
		if e.Seq <= lastSeq {
			result.Violations = append(result.Violations,
				fmt.Sprintf("seq %d follows seq %d", e.Seq, lastSeq))
		}
		lastSeq = e.Seq

		o, ok := state[e.OrderID]
		if !ok {
			o = &ReplayedOrder{ID: e.OrderID}
			state[e.OrderID] = o
		} else if e.Revision < o.Revision {
			result.Violations = append(result.Violations,
				fmt.Sprintf("order #%d revision %d after %d at seq %d", e.OrderID, e.Revision, o.Revision, e.Seq))
		}
		o.Status = e.To
		o.Revision = e.Revision
		o.Changes++
		return nil
	})
	if err != nil {
		return ReplayResult{}, err
	}

	result.Orders = make([]ReplayedOrder, 0, len(state))
	for _, o := range state {
		result.Orders = append(result.Orders, *o)
	}
	sort.Slice(result.Orders, func(i, j int) bool { return result.Orders[i].ID < result.Orders[j].ID })
	result.Consistent = len(result.Violations) == 0
	return result, nil
}

func outputReplayText(w io.Writer, result ReplayResult) {
	fmt.Fprintf(w, "Replayed %d changes across %d orders\n", result.Entries, len(result.Orders))
	fmt.Fprintln(w)
	for _, o := range result.Orders {
		fmt.Fprintf(w, "  #%d %s rev=%d (%d changes)\n", o.ID, o.Status, o.Revision, o.Changes)
	}
	if len(result.Violations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Violations:")
		for _, v := range result.Violations {
			fmt.Fprintf(w, "  ✗ %s\n", v)
		}
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "✓ journal is consistent")
}
