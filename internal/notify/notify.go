// Package notify forwards terminal update statuses out of the index
// controller: to a Kafka topic for downstream consumers and to Redis so that
// status lookups do not have to reach the indexer node.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/controller"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
)

// StatusEvent is the message published for every terminal update.
type StatusEvent struct {
	Index     string                  `json:"index"`
	IndexUUID uuid.UUID               `json:"indexUid"`
	Status    controller.UpdateStatus `json:"status"`
}

// Publisher is the subset of kafka.Producer the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaNotifier publishes StatusEvents keyed by index name, so the events of
// one index stay ordered within a partition.
type KafkaNotifier struct {
	pub Publisher
}

func NewKafkaNotifier(pub Publisher) *KafkaNotifier {
	return &KafkaNotifier{pub: pub}
}

func (n *KafkaNotifier) Notify(ctx context.Context, index controller.IndexMetadata, st controller.UpdateStatus) error {
	return n.pub.Publish(ctx, kafka.Event{
		Key: index.Name,
		Value: StatusEvent{
			Index:     index.Name,
			IndexUUID: index.UUID,
			Status:    st,
		},
		Headers: map[string]string{
			"status":    string(st.Kind),
			"update-id": strconv.FormatUint(st.UpdateID(), 10),
		},
	})
}

// KeyValue is the subset of the Redis client used to mirror statuses.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// StatusKey returns the Redis key holding the status of one update. Keys
// use the index uuid so that they survive renames by swap.
func StatusKey(index uuid.UUID, updateID uint64) string {
	return fmt.Sprintf("updates:%s:%d", index, updateID)
}

// RedisNotifier stores every terminal status under StatusKey for ttl.
type RedisNotifier struct {
	kv  KeyValue
	ttl time.Duration
}

func NewRedisNotifier(kv KeyValue, ttl time.Duration) *RedisNotifier {
	return &RedisNotifier{kv: kv, ttl: ttl}
}

func (n *RedisNotifier) Notify(ctx context.Context, index controller.IndexMetadata, st controller.UpdateStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding update status: %w", err)
	}
	if err := n.kv.Set(ctx, StatusKey(index.UUID, st.UpdateID()), data, n.ttl); err != nil {
		return fmt.Errorf("storing update status: %w", err)
	}
	return nil
}

// IndexRemoved deletes every mirrored status of the index.
func (n *RedisNotifier) IndexRemoved(ctx context.Context, index controller.IndexMetadata) error {
	if _, err := n.kv.FlushByPattern(ctx, fmt.Sprintf("updates:%s:*", index.UUID)); err != nil {
		return fmt.Errorf("purging statuses of %s: %w", index.Name, err)
	}
	return nil
}

// Lookup reads a mirrored status. isMissing reports whether an error from
// Get means the key does not exist.
func Lookup(ctx context.Context, kv KeyValue, isMissing func(error) bool, index uuid.UUID, updateID uint64) (controller.UpdateStatus, bool, error) {
	raw, err := kv.Get(ctx, StatusKey(index, updateID))
	if err != nil {
		if isMissing(err) {
			return controller.UpdateStatus{}, false, nil
		}
		return controller.UpdateStatus{}, false, err
	}
	var st controller.UpdateStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return controller.UpdateStatus{}, false, fmt.Errorf("decoding update status: %w", err)
	}
	return st, true, nil
}

// Guarded wraps a notifier in a retry loop behind a circuit breaker. While
// the breaker is open notifications are dropped immediately.
type Guarded struct {
	next    controller.Notifier
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewGuarded wraps next. Breaker transitions are exported through m.
func NewGuarded(name string, next controller.Notifier, cb resilience.CircuitBreakerConfig, retry resilience.RetryConfig, m *metrics.Metrics) *Guarded {
	cb.OnStateChange = func(name string, _, to resilience.State) {
		m.SetBreakerState(name, int(to))
	}
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen)
	}
	m.SetBreakerState(name, int(resilience.StateClosed))
	return &Guarded{
		next:    next,
		breaker: resilience.NewCircuitBreaker(name, cb),
		retry:   retry,
		logger:  slog.Default().With("component", "notifier", "name", name),
	}
}

func (g *Guarded) Notify(ctx context.Context, index controller.IndexMetadata, st controller.UpdateStatus) error {
	err := resilience.Retry(ctx, g.breaker.Name(), g.retry, func() error {
		return g.breaker.Execute(func() error {
			return g.next.Notify(ctx, index, st)
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		g.logger.Debug("notification dropped", "index", index.Name, "update_id", st.UpdateID())
	}
	return err
}

// IndexRemoved forwards to the wrapped notifier when it keeps per-index
// state.
func (g *Guarded) IndexRemoved(ctx context.Context, index controller.IndexMetadata) error {
	rn, ok := g.next.(controller.IndexRemovalNotifier)
	if !ok {
		return nil
	}
	return g.breaker.Execute(func() error {
		return rn.IndexRemoved(ctx, index)
	})
}

// State returns the breaker state, for health checks.
func (g *Guarded) State() resilience.State {
	return g.breaker.GetState()
}

// Fanout delivers every status to each notifier in turn.
type Fanout []controller.Notifier

func (f Fanout) Notify(ctx context.Context, index controller.IndexMetadata, st controller.UpdateStatus) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, index, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) IndexRemoved(ctx context.Context, index controller.IndexMetadata) error {
	var errs []error
	for _, n := range f {
		if rn, ok := n.(controller.IndexRemovalNotifier); ok {
			if err := rn.IndexRemoved(ctx, index); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
