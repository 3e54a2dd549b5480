package events

import (
	"context"
	"time"
)

// LedgerNotifier drops cached ledger figures as soon as an order commits,
// ahead of the worker picking up the task.
type LedgerNotifier struct {
	Ledger   LedgerInvalidator
	Location *time.Location
}

// Notify implements Notifier.
func (n LedgerNotifier) Notify(ctx context.Context, topic string, payload []byte) error {
	if topic != TopicOrderCommitted || n.Ledger == nil {
		return nil
	}
	evt, day, err := decodeCommitted(payload, n.Location)
	if err != nil {
		return err
	}
	if len(evt.ProductIDs) == 0 {
		return nil
	}
	return n.Ledger.Invalidate(ctx, day, evt.ProductIDs...)
}
