package bridge

import (
	"context"

	"github.com/martin-1103/gbika-sub001/internal/domain"
)

// Noop discards published events. Used when no broker is configured and
// fan-out to other processes is not wanted.
type Noop struct{}

var _ domain.FanoutBridge = Noop{}

func (Noop) Publish(context.Context, domain.Channel, domain.BridgeEvent) error { return nil }

func (Noop) Subscribe(ctx context.Context, _ domain.Channel, _ domain.BridgeHandler) error {
	<-ctx.Done()
	return nil
}
