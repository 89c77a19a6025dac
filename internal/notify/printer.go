package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Printer writes one human-readable line per signal.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Handle implements Subscriber.
func (p *Printer) Handle(_ context.Context, s Signal) error {
	line := FormatSignal(s)
	if line == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, line)
	return err
}

// FormatSignal renders s as a single line without a timestamp, so output
// is stable across runs.
func FormatSignal(s Signal) string {
	c := s.Change
	o := c.Order
	switch s.Kind {
	case KindOrderCreated:
		return fmt.Sprintf("NEW    #%d %s total=%s rev=%d seq=%d",
			o.ID, o.Status, o.Total.StringFixed(2), o.Revision, c.Seq)
	case KindOrderChanged:
		if c.StatusChanged() {
			return fmt.Sprintf("CHANGE #%d %s -> %s [%s] rev=%d seq=%d",
				o.ID, c.Previous, o.Status, c.Source, o.Revision, c.Seq)
		}
		return fmt.Sprintf("UPDATE #%d %s [%s] rev=%d seq=%d",
			o.ID, o.Status, c.Source, o.Revision, c.Seq)
	case KindConnectionChanged:
		return fmt.Sprintf("CHANNEL %s", s.Connection)
	case KindRefreshFailed:
		return fmt.Sprintf("WARN   refresh failed: %v", s.Err)
	}
	return ""
}
