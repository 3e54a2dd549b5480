package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is the subset of asynq.Client the bus needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier reacts to emitted events in-process.
type Notifier interface {
	Notify(ctx context.Context, topic string, payload []byte) error
}

// Bus publishes domain events as background tasks and fans them out to
// in-process notifiers.
type Bus struct {
	Queue     Enqueuer
	QueueName string
	MaxRetry  int
	Retention time.Duration
	Notifiers []Notifier
}

// Emit enqueues the event. The task id is derived from topic and aggregate id
// so a repeated emit for the same aggregate is accepted once.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) error {
	if b == nil || b.Queue == nil {
		return errors.New("events: queue not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("events: encode payload: %w", err)
	}

	opts := []asynq.Option{asynq.TaskID(topic + ":" + aggregateID)}
	if b.QueueName != "" {
		opts = append(opts, asynq.Queue(b.QueueName))
	}
	if b.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(b.MaxRetry))
	}
	if b.Retention > 0 {
		opts = append(opts, asynq.Retention(b.Retention))
	}
	var joined error
	if _, err := b.Queue.EnqueueContext(ctx, asynq.NewTask(topic, encoded), opts...); err != nil &&
		!errors.Is(err, asynq.ErrTaskIDConflict) && !errors.Is(err, asynq.ErrDuplicateTask) {
		joined = errors.Join(joined, fmt.Errorf("events: enqueue %s: %w", topic, err))
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, topic, encoded); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return validJSON(v)
	case json.RawMessage:
		return validJSON(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		return validJSON([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), data...), nil
}
