package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/martin-1103/gbika-sub001/internal/adapter/bridge"
	"github.com/martin-1103/gbika-sub001/internal/adapter/metrics"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Bridge fans relay events out to other instances over Redis pub/sub.
type Bridge struct {
	rdb            *goredis.Client
	breaker        circuitbreaker.CircuitBreaker[any]
	publishTimeout time.Duration
	metrics        *metrics.LivechatMetrics
}

var _ domain.FanoutBridge = (*Bridge)(nil)

func NewBridge(rdb *goredis.Client, breaker circuitbreaker.CircuitBreaker[any], publishTimeout time.Duration, m *metrics.LivechatMetrics) *Bridge {
	return &Bridge{
		rdb:            rdb,
		breaker:        breaker,
		publishTimeout: publishTimeout,
		metrics:        m,
	}
}

// Publish sends event on channel. Broker failures and an open breaker
// return an error wrapping domain.ErrUnavailable.
func (b *Bridge) Publish(ctx context.Context, channel domain.Channel, event domain.BridgeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal bridge event: %w", err)
	}

	if !b.breaker.TryAcquirePermit() {
		b.metrics.BridgePublishFailures.WithLabelValues(string(channel)).Inc()
		return fmt.Errorf("%w: publish to %s: %w", domain.ErrUnavailable, channel, circuitbreaker.ErrOpen)
	}

	ctx, cancel := context.WithTimeout(ctx, b.publishTimeout)
	defer cancel()

	if err := b.rdb.Publish(ctx, string(channel), data).Err(); err != nil {
		b.breaker.RecordError(err)
		b.metrics.BridgePublishFailures.WithLabelValues(string(channel)).Inc()
		return fmt.Errorf("%w: publish to %s: %w", domain.ErrUnavailable, channel, err)
	}

	b.breaker.RecordSuccess()
	b.metrics.BridgePublishes.WithLabelValues(string(channel)).Inc()
	return nil
}

// Subscribe blocks, handing decoded events to handler, until ctx is cancelled.
// It returns an error only when the initial subscription fails.
func (b *Bridge) Subscribe(ctx context.Context, channel domain.Channel, handler domain.BridgeHandler) error {
	pubsub := b.rdb.Subscribe(ctx, string(channel))
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	slog.Info("Subscribed to bridge channel", "channel", channel)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handleMessage(ctx, channel, msg.Payload, handler)
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Bridge) handleMessage(ctx context.Context, channel domain.Channel, payload string, handler domain.BridgeHandler) {
	event, err := bridge.Decode([]byte(payload))
	if err != nil {
		slog.WarnContext(ctx, "Dropping malformed bridge payload", "channel", channel, "error", err)
		return
	}

	b.metrics.BridgeEventsReceived.WithLabelValues(string(channel), event.Kind).Inc()
	bridge.Deliver(ctx, channel, event, handler)
}
