package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/order"
)

// SetStatusOptions holds flags for the set-status command.
type SetStatusOptions struct {
	*RootOptions
	Timeout time.Duration
}

// SetStatusResult is the JSON payload of a confirmed status change.
type SetStatusResult struct {
	Order order.Order  `json:"order"`
	From  order.Status `json:"from"`
	Token string       `json:"token"`
}

// NewSetStatusCommand creates the set-status command.
func NewSetStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetStatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set-status <order-id> <status>",
		Short: "Change an order's status",
		Long: `Change an order's status through the order service.

The current order list is loaded first, so the transition is checked
against the lifecycle before any request is sent:

  PLACED -> IN_PREPARATION -> OUT_FOR_DELIVERY -> DELIVERED
  PLACED, IN_PREPARATION, OUT_FOR_DELIVERY -> CANCELLED

Exit codes:
  0 - The service confirmed the change
  1 - The change was rejected or failed
  2 - Command error (bad arguments, service unreachable)

Examples:
  ordersync set-status 42 EN_PREPARACION
  ordersync set-status 42 delivered --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetStatus(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "how long to wait for the service")

	return cmd
}

func runSetStatus(opts *SetStatusOptions, rawID, rawStatus string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid order id %q", rawID))
	}
	to, err := order.ParseStatus(rawStatus)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid status", err)
	}

	st, err := loadSettings(opts.RootOptions)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	eng, err := loadEngine(ctx, st.BaseURL, newClient(st))
	if err != nil {
		_ = formatter.OrderError(err)
		return WrapExitError(ExitCommandError, "failed to load orders", err)
	}
	defer eng.Close()

	sc, err := eng.RequestStatusChange(ctx, id, to)
	if err != nil {
		_ = formatter.OrderError(err)
		return WrapExitError(ExitFailure, "status change rejected", err)
	}
	formatter.VerboseLog("order %d: %s -> %s pending (token %s)", id, sc.Action.From, to, sc.Action.Token)

	confirmed, err := sc.Wait(ctx)
	if err != nil {
		_ = formatter.OrderError(err)
		return WrapExitError(ExitFailure, "status change failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(SetStatusResult{Order: confirmed, From: sc.Action.From, Token: sc.Action.Token})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Order %d: %s -> %s (revision %d)\n",
		confirmed.ID, sc.Action.From, confirmed.Status, confirmed.Revision)
	return nil
}
