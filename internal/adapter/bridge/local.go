package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/martin-1103/gbika-sub001/internal/domain"
)

const defaultLocalBuffer = 256

// Local is an in-process bus. Every subscriber of a channel gets its own
// buffered queue; a full queue drops the event for that subscriber only.
type Local struct {
	mu     sync.RWMutex
	subs   map[domain.Channel]map[*localSub]struct{}
	buffer int
}

type localSub struct {
	ch chan domain.BridgeEvent
}

var _ domain.FanoutBridge = (*Local)(nil)

func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = defaultLocalBuffer
	}
	return &Local{
		subs:   make(map[domain.Channel]map[*localSub]struct{}),
		buffer: buffer,
	}
}

// Publish enqueues event for every current subscriber of channel without blocking.
func (l *Local) Publish(ctx context.Context, channel domain.Channel, event domain.BridgeEvent) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for sub := range l.subs[channel] {
		select {
		case sub.ch <- event:
		default:
			slog.WarnContext(ctx, "Local bridge subscriber full, dropping event",
				"channel", channel,
				"kind", event.Kind,
			)
		}
	}
	return nil
}

// Subscribe delivers events to handler until ctx is cancelled. It returns nil on cancellation.
func (l *Local) Subscribe(ctx context.Context, channel domain.Channel, handler domain.BridgeHandler) error {
	sub := &localSub{ch: make(chan domain.BridgeEvent, l.buffer)}

	l.mu.Lock()
	if l.subs[channel] == nil {
		l.subs[channel] = make(map[*localSub]struct{})
	}
	l.subs[channel][sub] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.subs[channel], sub)
		l.mu.Unlock()
	}()

	for {
		select {
		case event := <-sub.ch:
			Deliver(ctx, channel, event, handler)
		case <-ctx.Done():
			return nil
		}
	}
}

// Subscribers reports how many subscribers are attached to channel.
func (l *Local) Subscribers(channel domain.Channel) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[channel])
}
