// Package snapshot loads the full order list and merges it into the engine.
package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/metrics"
	"github.com/roach88/ordersync/internal/order"
)

// Source performs the bulk read.
type Source interface {
	ListOrders(ctx context.Context) ([]order.Order, error)
}

// Target receives loaded snapshots.
type Target interface {
	ApplySnapshot(orders []order.Order) engine.SnapshotResult
}

// Warner receives the non-blocking warning for a failed refresh.
type Warner interface {
	RefreshFailed(err error)
}

// Loader ties a Source to a Target.
type Loader struct {
	source Source
	target Target
	warner Warner
}

// NewLoader creates a Loader. warner may be nil.
func NewLoader(source Source, target Target, warner Warner) *Loader {
	return &Loader{source: source, target: target, warner: warner}
}

// LoadAll reads every order, most recently placed first. Any failure is
// returned as a NETWORK_ERROR unless it already carries a code.
func (l *Loader) LoadAll(ctx context.Context) ([]order.Order, error) {
	start := time.Now()
	orders, err := l.source.ListOrders(ctx)
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SnapshotFailuresTotal.Inc()
		if order.CodeOf(err) == "" {
			err = order.NewNetworkError(0, "bulk read failed", err)
		}
		return nil, err
	}
	engine.SortForDisplay(orders)
	return orders, nil
}

// Refresh loads a snapshot and applies it. On failure the engine is left
// untouched and a warning is published.
func (l *Loader) Refresh(ctx context.Context) error {
	orders, err := l.LoadAll(ctx)
	if err != nil {
		slog.Warn("snapshot refresh failed", "error", err)
		if l.warner != nil {
			l.warner.RefreshFailed(err)
		}
		return err
	}
	l.target.ApplySnapshot(orders)
	return nil
}

// Run refreshes every interval until ctx is done. Failures are reported by
// Refresh and do not stop the loop.
func (l *Loader) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = l.Refresh(ctx)
		}
	}
}
