package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/channel"
	"github.com/roach88/ordersync/internal/config"
	"github.com/roach88/ordersync/internal/console"
	"github.com/roach88/ordersync/internal/dispatch"
	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/metrics"
	"github.com/roach88/ordersync/internal/notify"
	"github.com/roach88/ordersync/internal/snapshot"
	"github.com/roach88/ordersync/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal string
	Listen  string
	Channel string

	// Dialer overrides the push channel dialer (for testing).
	// If nil, a STOMP-over-WebSocket dialer is built from the configuration.
	Dialer channel.Dialer
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the order sync engine",
		Long: `Start the order sync engine.

Loads every order from the order service, subscribes to the push channel
and prints one line per order change. Changes are journaled when a journal
path is configured, and the operations console is served when a listen
address is configured.

Example:
  ordersync run --config ./ordersync.yaml
  ordersync run --server http://localhost:8080 --ws ws://localhost:8080/ws --journal ./orders.db
  ordersync run --listen :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (overrides config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "console listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Channel, "ws", "", "push channel WebSocket URL (overrides config)")

	return cmd
}

func runSync(opts *RunOptions, cmd *cobra.Command) error {
	st, err := loadSettings(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Journal != "" {
		st.JournalPath = opts.Journal
	}
	if opts.Listen != "" {
		st.ConsoleListen = opts.Listen
	}
	if opts.Channel != "" {
		st.ChannelURL = opts.Channel
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	bus := notify.NewBus()
	bus.Subscribe(notify.NewPrinter(cmd.OutOrStdout()))

	clock := engine.NewClock()
	if st.JournalPath != "" {
		journal, err := openJournal(ctx, st.JournalPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := journal.store.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		clock = engine.NewClockAt(journal.lastSeq)
		bus.Subscribe(store.NewJournal(journal.store))
	}

	// The bus outlives ctx so signals raised during shutdown are delivered.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = bus.Run(context.Background())
	}()

	client := newClient(st)
	eng := engine.New(client,
		engine.WithSink(bus),
		engine.WithClock(clock),
		engine.WithDeletePolicy(st.DeletePolicy),
	)
	loader := snapshot.NewLoader(client, eng, bus)

	slog.Info("loading orders", "server", st.BaseURL)
	if err := loader.Refresh(ctx); err != nil {
		slog.Warn("initial load failed; waiting for the push channel and the next refresh", "error", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d orders from %s\n", len(eng.List()), st.BaseURL)

	disp := dispatch.New(eng, bus, dispatch.WithRefresher(loader, st.RequestTimeout))
	mgr := channel.NewManager(channelDialer(opts, st), st.Channel, disp.HandleMessage, disp.HandleStatus)
	mgr.Start()

	errc := make(chan error, 2)
	if st.RefreshInterval > 0 {
		go func() { errc <- ignoreCanceled(loader.Run(ctx, st.RefreshInterval)) }()
	}
	if st.ConsoleListen != "" {
		srv := console.NewServer(eng, mgr, console.WithGatherer(registry))
		go func() { errc <- srv.Run(ctx, st.ConsoleListen) }()
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Syncing orders. Press Ctrl-C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}

	stop()
	mgr.Stop()
	eng.Close()
	bus.Stop()
	wg.Wait()

	if runErr != nil {
		return WrapExitError(ExitFailure, "sync stopped", runErr)
	}
	slog.Info("sync stopped gracefully")
	return nil
}

type openedJournal struct {
	store   *store.Store
	lastSeq int64
}

// openJournal opens the journal and reads the sequence number to resume
// the logical clock from.
func openJournal(ctx context.Context, path string) (*openedJournal, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	last, err := st.LastSeq(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	slog.Info("journal ready", "path", path, "last_seq", last)
	return &openedJournal{store: st, lastSeq: last}, nil
}

func channelDialer(opts *RunOptions, st config.Settings) channel.Dialer {
	if opts.Dialer != nil {
		return opts.Dialer
	}
	return &channel.WebSocketDialer{
		URL:               st.ChannelURL,
		Login:             st.Login,
		Passcode:          st.Passcode,
		HeartbeatInterval: st.Channel.HeartbeatInterval,
		HeartbeatTimeout:  st.Channel.HeartbeatTimeout,
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
