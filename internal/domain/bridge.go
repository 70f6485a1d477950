package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel names a fan-out direction.
type Channel string

const (
	ChannelListenerToModerator Channel = "livechat:listener-to-moderator"
	ChannelModeratorToListener Channel = "livechat:moderator-to-listener"
)

// Event kinds carried over the bridge. They double as wire event names.
const (
	EventMessageNew       = "message:new"
	EventUserTyping       = "user:typing"
	EventMessageReceive   = "message:receive"
	EventMessageModerated = "message:moderated"
	EventSessionEnded     = "session:ended"
)

// BridgeEvent is the payload published between relay instances.
type BridgeEvent struct {
	Kind        string          `json:"kind"`
	SessionID   uuid.UUID       `json:"sessionId"`
	Origin      string          `json:"origin"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// BridgeHandler consumes events received on a subscribed channel.
type BridgeHandler func(ctx context.Context, event BridgeEvent)

// FanoutBridge publishes events to relay instances in other processes.
//
// Publish never blocks beyond its own timeout. When the broker cannot be
// reached it returns an error wrapping ErrUnavailable; callers log and move on.
// Subscribe blocks until ctx is cancelled.
type FanoutBridge interface {
	Publish(ctx context.Context, channel Channel, event BridgeEvent) error
	Subscribe(ctx context.Context, channel Channel, handler BridgeHandler) error
}
