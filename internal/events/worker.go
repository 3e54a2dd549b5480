package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// LedgerInvalidator drops cached daily-sold figures.
type LedgerInvalidator interface {
	Invalidate(ctx context.Context, day time.Time, ids ...string) error
}

// Worker handles tasks published by the bus.
type Worker struct {
	Ledger   LedgerInvalidator
	Location *time.Location
	Logger   zerolog.Logger
	// OnConflict is called for every stock conflict; used for metrics.
	OnConflict func(StockConflict)
}

// Register attaches the worker handlers to mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TopicOrderCommitted, w.HandleOrderCommitted)
	mux.HandleFunc(TopicStockConflict, w.HandleStockConflict)
}

// HandleOrderCommitted invalidates the ledger cache for the committed products.
func (w *Worker) HandleOrderCommitted(ctx context.Context, t *asynq.Task) error {
	evt, day, err := decodeCommitted(t.Payload(), w.Location)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if w.Ledger != nil && len(evt.ProductIDs) > 0 {
		if err := w.Ledger.Invalidate(ctx, day, evt.ProductIDs...); err != nil {
			return fmt.Errorf("invalidate ledger: %w", err)
		}
	}
	w.Logger.Info().
		Str("order_id", evt.OrderID).
		Str("channel", evt.Channel).
		Str("day", evt.Day).
		Int("products", len(evt.ProductIDs)).
		Bool("edited", evt.Edited).
		Msg("order_committed")
	return nil
}

// HandleStockConflict records a lost stock race.
func (w *Worker) HandleStockConflict(_ context.Context, t *asynq.Task) error {
	var evt StockConflict
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	w.Logger.Warn().
		Str("cart_id", evt.CartID).
		Str("product_id", evt.ProductID).
		Int("requested", evt.Requested).
		Int("allowed", evt.Allowed).
		Str("reason", evt.Reason).
		Msg("stock_conflict")
	if w.OnConflict != nil {
		w.OnConflict(evt)
	}
	return nil
}

func decodeCommitted(payload []byte, loc *time.Location) (OrderCommitted, time.Time, error) {
	var evt OrderCommitted
	if err := json.Unmarshal(payload, &evt); err != nil {
		return OrderCommitted{}, time.Time{}, fmt.Errorf("decode: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(time.DateOnly, evt.Day, loc)
	if err != nil {
		return OrderCommitted{}, time.Time{}, fmt.Errorf("parse day %q: %w", evt.Day, err)
	}
	return evt, day, nil
}
