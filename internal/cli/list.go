package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/snapshot"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Status string
	Stats  bool
}

// ListResult is the JSON payload of the list command.
type ListResult struct {
	Orders []order.Order  `json:"orders"`
	Stats  *engine.Stats  `json:"stats,omitempty"`
	Filter []order.Status `json:"filter,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders from the order service",
		Long: `Load every order from the order service and print them, most
recently placed first.

Statuses may be given in either vocabulary (PENDIENTE or PLACED) and
separated by commas. TODOS lists every order.

Examples:
  ordersync list
  ordersync list --status EN_PREPARACION,EN_CAMINO
  ordersync list --stats --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "comma-separated status filter")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "include dashboard counters")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	filter, err := parseStatusFilter(opts.Status)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --status", err)
	}

	st, err := loadSettings(opts.RootOptions)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	eng, err := loadEngine(ctx, st.BaseURL, newClient(st))
	if err != nil {
		_ = formatter.OrderError(err)
		return WrapExitError(ExitCommandError, "failed to load orders", err)
	}
	defer eng.Close()

	orders := eng.List(filter...)
	formatter.VerboseLog("loaded %d orders, %d after filter", len(eng.List()), len(orders))

	var stats *engine.Stats
	if opts.Stats {
		s := eng.Stats(time.Now())
		stats = &s
	}

	if opts.Format == "json" {
		return formatter.Success(ListResult{Orders: orders, Stats: stats, Filter: filter})
	}
	writeOrderTable(cmd.OutOrStdout(), orders)
	if stats != nil {
		writeStats(cmd.OutOrStdout(), *stats)
	}
	return nil
}

// orderService is what one-shot commands need from the order service.
type orderService interface {
	snapshot.Source
	engine.Updater
}

// loadEngine builds an engine over client and fills it with one snapshot.
func loadEngine(ctx context.Context, server string, client orderService, opts ...engine.Option) (*engine.Engine, error) {
	eng := engine.New(client, opts...)
	orders, err := snapshot.NewLoader(client, eng, nil).LoadAll(ctx)
	if err != nil {
		eng.Close()
		return nil, fmt.Errorf("%s: %w", server, err)
	}
	eng.ApplySnapshot(orders)
	return eng, nil
}

// parseStatusFilter parses a comma-separated status list. Empty and TODOS
// mean no filter.
func parseStatusFilter(raw string) ([]order.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "TODOS") || strings.EqualFold(raw, "ALL") {
		return nil, nil
	}
	var out []order.Status
	for _, part := range strings.Split(raw, ",") {
		s, err := order.ParseStatus(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// writeOrderTable prints one row per order.
func writeOrderTable(w io.Writer, orders []order.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tREV\tPLACED\tTOTAL\tITEMS\tCONTACT")
	for _, o := range orders {
		placed := "-"
		if !o.PlacedAt.IsZero() {
			placed = o.PlacedAt.UTC().Format("2006-01-02 15:04")
		}
		contact := o.Contact
		if contact == "" {
			contact = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%d\t%s\n",
			o.ID, o.Status, o.Revision, placed, o.Total.StringFixed(2), itemCount(o), contact)
	}
	tw.Flush()
}

func writeStats(w io.Writer, s engine.Stats) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total: %d  Pending: %d  Placed today: %d  Delivered: %d  Sales: %s\n",
		s.Total, s.Pending, s.PlacedToday, s.Delivered, s.Sales.StringFixed(2))
}

func itemCount(o order.Order) int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}
