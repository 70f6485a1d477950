// Package bridge holds in-process FanoutBridge implementations and the
// delivery helpers shared with broker-backed bridges.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/martin-1103/gbika-sub001/internal/domain"
)

var errMissingKind = errors.New("bridge event has no kind")

// Decode parses a broker payload into a BridgeEvent.
func Decode(payload []byte) (domain.BridgeEvent, error) {
	var event domain.BridgeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.BridgeEvent{}, fmt.Errorf("failed to decode bridge event: %w", err)
	}
	if event.Kind == "" {
		return domain.BridgeEvent{}, errMissingKind
	}
	return event, nil
}

// Deliver invokes handler and recovers from a panic so one bad event
// cannot kill a subscriber loop.
func Deliver(ctx context.Context, channel domain.Channel, event domain.BridgeEvent, handler domain.BridgeHandler) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Bridge handler panicked",
				"channel", channel,
				"kind", event.Kind,
				"session_id", event.SessionID,
				"panic", r,
			)
		}
	}()
	handler(ctx, event)
}
