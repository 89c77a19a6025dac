package store

import (
	"context"
	"time"

	"github.com/roach88/ordersync/internal/notify"
)

// Journal is the notify.Subscriber that writes order signals to a Store.
type Journal struct {
	store *Store
	now   func() time.Time
}

// NewJournal creates a Journal over s.
func NewJournal(s *Store) *Journal {
	return &Journal{store: s, now: time.Now}
}

// Handle implements notify.Subscriber. Connection and warning signals are
// not journaled.
func (j *Journal) Handle(ctx context.Context, s notify.Signal) error {
	switch s.Kind {
	case notify.KindOrderCreated, notify.KindOrderChanged:
	default:
		return nil
	}
	at := s.At
	if at.IsZero() {
		at = j.now()
	}
	_, err := j.store.Record(ctx, EntryFromChange(s.Change, at))
	return err
}
