package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-kasir/internal/events"
)

type recordingLedger struct {
	day time.Time
	ids []string
	err error
}

func (r *recordingLedger) Invalidate(_ context.Context, day time.Time, ids ...string) error {
	r.day = day
	r.ids = append(r.ids, ids...)
	return r.err
}

func task(t *testing.T, topic string, payload any) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(topic, data)
}

func TestHandleOrderCommittedInvalidatesLedger(t *testing.T) {
	ledger := &recordingLedger{}
	w := &events.Worker{Ledger: ledger, Location: time.UTC, Logger: zerolog.Nop()}

	err := w.HandleOrderCommitted(context.Background(), task(t, events.TopicOrderCommitted, events.OrderCommitted{
		OrderID:    "ord-1",
		Day:        "2026-03-02",
		ProductIDs: []string{"indomie", "aqua"},
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"indomie", "aqua"}, ledger.ids)
	require.Equal(t, "2026-03-02", ledger.day.Format(time.DateOnly))
}

func TestHandleOrderCommittedErrors(t *testing.T) {
	w := &events.Worker{Ledger: &recordingLedger{err: errors.New("redis down")}, Logger: zerolog.Nop()}
	ctx := context.Background()

	err := w.HandleOrderCommitted(ctx, asynq.NewTask(events.TopicOrderCommitted, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = w.HandleOrderCommitted(ctx, task(t, events.TopicOrderCommitted, events.OrderCommitted{Day: "yesterday"}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = w.HandleOrderCommitted(ctx, task(t, events.TopicOrderCommitted, events.OrderCommitted{Day: "2026-03-02", ProductIDs: []string{"aqua"}}))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleStockConflict(t *testing.T) {
	var seen []events.StockConflict
	w := &events.Worker{Logger: zerolog.Nop(), OnConflict: func(c events.StockConflict) { seen = append(seen, c) }}
	err := w.HandleStockConflict(context.Background(), task(t, events.TopicStockConflict, events.StockConflict{ProductID: "aqua", Reason: "stock"}))
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.Equal(t, "aqua", seen[0].ProductID)
}

func TestRegisterRoutesTasks(t *testing.T) {
	ledger := &recordingLedger{}
	w := &events.Worker{Ledger: ledger, Location: time.UTC, Logger: zerolog.Nop()}
	mux := asynq.NewServeMux()
	w.Register(mux)

	err := mux.ProcessTask(context.Background(), task(t, events.TopicOrderCommitted, events.OrderCommitted{Day: "2026-03-02", ProductIDs: []string{"gula"}}))
	require.NoError(t, err)
	require.Equal(t, []string{"gula"}, ledger.ids)
}

func TestLedgerNotifierInvalidatesOnCommit(t *testing.T) {
	ledger := &recordingLedger{}
	n := events.LedgerNotifier{Ledger: ledger, Location: time.UTC}
	ctx := context.Background()

	payload, err := json.Marshal(events.OrderCommitted{OrderID: "ord-1", Day: "2026-03-02", ProductIDs: []string{"gula"}})
	require.NoError(t, err)
	require.NoError(t, n.Notify(ctx, events.TopicStockConflict, payload))
	require.Empty(t, ledger.ids)

	require.NoError(t, n.Notify(ctx, events.TopicOrderCommitted, payload))
	require.Equal(t, []string{"gula"}, ledger.ids)
	require.Equal(t, "2026-03-02", ledger.day.Format(time.DateOnly))

	require.Error(t, n.Notify(ctx, events.TopicOrderCommitted, []byte(`{"day":"yesterday"}`)))
}
