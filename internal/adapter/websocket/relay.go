// Package websocket serves the live-chat relay: the authenticated socket
// handshake, per-connection read and write loops, and the bridge subscribers
// that deliver events published by other relay instances.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/martin-1103/gbika-sub001/internal/adapter/metrics"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	"github.com/martin-1103/gbika-sub001/internal/platform/correlation"
	apperrors "github.com/martin-1103/gbika-sub001/internal/platform/errors"
	"golang.org/x/sync/errgroup"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string, allowed []domain.Role) (domain.Identity, error)
}

type MessageService interface {
	Submit(ctx context.Context, sessionID uuid.UUID, text string) (*domain.ChatMessage, error)
	PostAdminMessage(ctx context.Context, sessionID uuid.UUID, text string, author domain.Identity) (*domain.ChatMessage, error)
	RecordAdminMessage(ctx context.Context, msg *domain.ChatMessage) error
}

// Deps wires a Relay.
type Deps struct {
	Auth        Authenticator
	Messages    MessageService
	Registry    *Registry
	Bridge      domain.FanoutBridge
	Limits      *ConnectionLimits
	Clock       clockwork.Clock
	Metrics     *metrics.WebSocketMetrics
	Livechat    *metrics.LivechatMetrics // optional
	InstanceID  string
	CheckOrigin func(r *http.Request) bool
}

type Relay struct {
	auth       Authenticator
	messages   MessageService
	registry   *Registry
	bridge     domain.FanoutBridge
	limits     *ConnectionLimits
	clock      clockwork.Clock
	metrics    *metrics.WebSocketMetrics
	livechat   *metrics.LivechatMetrics
	instanceID string
	upgrader   websocket.Upgrader
}

func NewRelay(d Deps) *Relay {
	return &Relay{
		auth:       d.Auth,
		messages:   d.Messages,
		registry:   d.Registry,
		bridge:     d.Bridge,
		limits:     d.Limits,
		clock:      d.Clock,
		metrics:    d.Metrics,
		livechat:   d.Livechat,
		instanceID: d.InstanceID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     d.CheckOrigin,
		},
	}
}

// Registry exposes the live connection set of this instance.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Run subscribes to both bridge channels and blocks until ctx is cancelled
// or a subscription fails.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.bridge.Subscribe(ctx, domain.ChannelListenerToModerator, r.onListenerEvent)
	})
	g.Go(func() error {
		return r.bridge.Subscribe(ctx, domain.ChannelModeratorToListener, r.onModeratorEvent)
	})
	return g.Wait()
}

// HandleUpgrade is the echo handler for GET /livechat/ws?token=&role=.
func (r *Relay) HandleUpgrade(c echo.Context) error {
	ip := c.RealIP()
	admitted, reason := r.limits.Acquire(ip)
	if !admitted {
		r.metrics.HandshakeRejections.WithLabelValues(string(reason)).Inc()
		return c.JSON(reason.HTTPStatus(), apperrors.UnavailableError("Too many connections", nil).
			WithField("reason", string(reason)).ToResponse())
	}
	defer r.limits.Release(ip)

	allowed, ok := allowedRoles(c.QueryParam("role"))
	if !ok {
		return r.reject(c, "invalid_role", apperrors.ValidationError("Invalid role").WithField("role", c.QueryParam("role")))
	}

	ctx := c.Request().Context()
	identity, err := r.auth.Authenticate(ctx, c.QueryParam("token"), allowed)
	if err != nil {
		reasonLabel, appErr := handshakeError(err)
		if appErr.Type == apperrors.TypeUnavailable {
			slog.WarnContext(ctx, "Relay handshake failed", "error", err)
		}
		return r.reject(c, reasonLabel, appErr)
	}

	ws, err := r.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		r.metrics.HandshakeRejections.WithLabelValues("upgrade_failed").Inc()
		slog.DebugContext(ctx, "Relay upgrade failed", "error", err)
		return nil
	}

	r.serve(ctx, ws, identity)
	return nil
}

func (r *Relay) reject(c echo.Context, reason string, err *apperrors.Error) error {
	r.metrics.HandshakeRejections.WithLabelValues(reason).Inc()
	return c.JSON(err.HTTPStatus(), err.ToResponse())
}

func allowedRoles(hint string) ([]domain.Role, bool) {
	switch domain.Role(hint) {
	case "", domain.RoleListener:
		return domain.ListenerRoles, true
	case domain.RoleModerator, domain.RoleBroadcaster:
		return domain.StaffRoles, true
	default:
		return nil, false
	}
}

func handshakeError(err error) (string, *apperrors.Error) {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired", apperrors.UnauthorizedError("Token expired")
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized", apperrors.UnauthorizedError("Invalid token")
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden", apperrors.ForbiddenError("Role not permitted")
	default:
		return "unavailable", apperrors.UnavailableError("Session store unavailable", err)
	}
}

const closeSessionExpired = "session expired"

// liveConn is the relay's view of one open socket.
type liveConn struct {
	domain.Connection
	identity domain.Identity
	client   *client
}

func (r *Relay) serve(ctx context.Context, ws *websocket.Conn, identity domain.Identity) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cl := newClient(ws, r.clock, r.metrics)
	conn := domain.NewConnection(identity, r.clock.Now())
	conn.ID = r.registry.Register(conn, cl)
	lc := &liveConn{Connection: conn, identity: identity, client: cl}
	ctx = correlation.WithConnectionID(ctx, conn.ID)

	gauge := r.metrics.ActiveConnections.WithLabelValues(string(conn.Role))
	gauge.Inc()
	slog.DebugContext(ctx, "Relay connection opened", "role", conn.Role, "session_id", conn.SessionID)

	defer func() {
		r.registry.Unregister(conn.ID)
		cl.stop()
		gauge.Dec()
		slog.DebugContext(ctx, "Relay connection closed")
	}()

	if !conn.ExpiresAt.IsZero() {
		expiry := r.clock.AfterFunc(conn.ExpiresAt.Sub(r.clock.Now()), func() {
			slog.DebugContext(ctx, "Relay connection expired")
			cl.Close(closeSessionExpired)
		})
		defer expiry.Stop()
	}

	success := ConnectionSuccess{User: userInfo(conn), Role: conn.Role}
	if !conn.Role.Staff() {
		success.SessionID = conn.SessionID.String()
	}
	r.reply(ctx, lc, EventConnectionSuccess, success)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "Relay read failed", "error", err)
			}
			return
		}
		cl.extendReadDeadline()
		r.dispatch(ctx, lc, data)
	}
}

func (r *Relay) dispatch(ctx context.Context, lc *liveConn, data []byte) {
	if lc.Expired(r.clock.Now()) {
		lc.client.Close(closeSessionExpired)
		return
	}

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		r.replyError(ctx, lc, EventErrorInvalidPayload, "Malformed frame")
		return
	}

	switch frame.Event {
	case EventMessageSend:
		if lc.Role.Staff() {
			r.handleStaffSend(ctx, lc, frame.Payload)
		} else {
			r.handleListenerSend(ctx, lc, frame.Payload)
		}
	case domain.EventUserTyping:
		r.handleTyping(ctx, lc, frame.Payload)
	default:
		r.replyError(ctx, lc, EventErrorInvalidEvent, fmt.Sprintf("Unknown event: %s", frame.Event))
	}
}

func (r *Relay) handleListenerSend(ctx context.Context, lc *liveConn, raw json.RawMessage) {
	var in MessageSend
	if err := json.Unmarshal(raw, &in); err != nil {
		r.replyError(ctx, lc, EventErrorInvalidPayload, "Malformed message payload")
		return
	}

	msg, err := r.messages.Submit(ctx, lc.SessionID, in.Text)
	if err != nil {
		r.replySendError(ctx, lc, err)
		return
	}
	if r.livechat != nil {
		r.livechat.MessagesSubmitted.Inc()
	}

	r.reply(ctx, lc, EventMessageAck, MessageAck{MessageID: msg.ID.String(), Timestamp: msg.CreatedAt})

	payload := MessageNew{Message: msg, From: userInfo(lc.Connection)}
	r.toModerators(ctx, domain.EventMessageNew, payload)
	r.publish(ctx, domain.ChannelListenerToModerator, domain.EventMessageNew, lc.SessionID, payload)
}

func (r *Relay) handleStaffSend(ctx context.Context, lc *liveConn, raw json.RawMessage) {
	var in MessageSend
	if err := json.Unmarshal(raw, &in); err != nil {
		r.replyError(ctx, lc, EventErrorInvalidPayload, "Malformed message payload")
		return
	}
	sessionID, err := uuid.Parse(in.SessionID)
	if err != nil {
		r.replyError(ctx, lc, EventErrorInvalidPayload, "sessionId is required")
		return
	}

	msg, err := r.messages.PostAdminMessage(ctx, sessionID, in.Text, lc.identity)
	if err != nil {
		r.replySendError(ctx, lc, err)
		return
	}

	r.reply(ctx, lc, EventMessageAck, MessageAck{MessageID: msg.ID.String(), Timestamp: msg.CreatedAt})
	r.BroadcastAdmin(ctx, msg)
}

func (r *Relay) handleTyping(ctx context.Context, lc *liveConn, raw json.RawMessage) {
	if lc.Role.Staff() {
		r.replyError(ctx, lc, EventErrorInvalidEvent, "user:typing is only accepted from listeners")
		return
	}

	var in TypingIn
	if err := json.Unmarshal(raw, &in); err != nil {
		r.replyError(ctx, lc, EventErrorInvalidPayload, "Malformed typing payload")
		return
	}

	payload := TypingOut{SessionID: lc.SessionID.String(), Name: lc.DisplayName, IsTyping: in.IsTyping}
	r.toModerators(ctx, domain.EventUserTyping, payload)
	r.publish(ctx, domain.ChannelListenerToModerator, domain.EventUserTyping, lc.SessionID, payload)
}

func (r *Relay) replySendError(ctx context.Context, lc *liveConn, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		r.replyError(ctx, lc, EventErrorInvalidPayload, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		r.replyError(ctx, lc, EventErrorInvalidPayload, "Session not found")
	case errors.Is(err, domain.ErrUnauthorized):
		slog.DebugContext(ctx, "Closing connection with unusable session", "error", err)
		lc.client.Close(closeSessionExpired)
	default:
		slog.ErrorContext(ctx, "Failed to handle message:send", "error", err)
		r.replyError(ctx, lc, EventErrorServer, "Failed to send message")
	}
}

// PublishModeration delivers a moderation outcome to the author's session and
// to staff on this instance, then fans it out to the others. Broadcasters only
// hear about approvals.
func (r *Relay) PublishModeration(ctx context.Context, msg *domain.ChatMessage) {
	frame := messageModerated(msg)
	r.toSession(ctx, msg.SessionID, domain.EventMessageModerated, frame)
	r.toOutcomeWatchers(ctx, msg.Status, frame)
	r.publish(ctx, domain.ChannelModeratorToListener, domain.EventMessageModerated, msg.SessionID, msg)
}

// BroadcastAdmin delivers an admin reply to the session's connections here
// and on every other instance.
func (r *Relay) BroadcastAdmin(ctx context.Context, msg *domain.ChatMessage) {
	r.toSession(ctx, msg.SessionID, domain.EventMessageReceive, messageReceive(msg))
	r.publish(ctx, domain.ChannelModeratorToListener, domain.EventMessageReceive, msg.SessionID, msg)
}

// EndSession closes the session's connections everywhere.
func (r *Relay) EndSession(ctx context.Context, sessionID uuid.UUID) {
	closed := r.registry.CloseSession(sessionID, "session ended")
	slog.InfoContext(ctx, "Session ended", "session_id", sessionID, "closed_connections", closed)
	r.publish(ctx, domain.ChannelModeratorToListener, domain.EventSessionEnded, sessionID, nil)
}

// Shutdown closes every connection on this instance.
func (r *Relay) Shutdown() {
	r.registry.CloseAll("server shutting down")
}

func (r *Relay) onListenerEvent(ctx context.Context, event domain.BridgeEvent) {
	if event.Origin == r.instanceID {
		return
	}

	switch event.Kind {
	case domain.EventMessageNew, domain.EventUserTyping:
		r.toModerators(ctx, event.Kind, event.Payload)
	default:
		slog.WarnContext(ctx, "Unexpected bridge event", "channel", domain.ChannelListenerToModerator, "kind", event.Kind)
	}
}

func (r *Relay) onModeratorEvent(ctx context.Context, event domain.BridgeEvent) {
	if event.Origin == r.instanceID {
		return
	}

	switch event.Kind {
	case domain.EventMessageReceive:
		msg, ok := decodeMessage(ctx, event)
		if !ok {
			return
		}
		if err := r.messages.RecordAdminMessage(ctx, msg); err != nil {
			slog.WarnContext(ctx, "Failed to record relayed admin message", "message_id", msg.ID, "error", err)
		}
		r.toSession(ctx, event.SessionID, domain.EventMessageReceive, messageReceive(msg))
	case domain.EventMessageModerated:
		msg, ok := decodeMessage(ctx, event)
		if !ok {
			return
		}
		frame := messageModerated(msg)
		r.toSession(ctx, event.SessionID, domain.EventMessageModerated, frame)
		r.toOutcomeWatchers(ctx, msg.Status, frame)
	case domain.EventSessionEnded:
		r.registry.CloseSession(event.SessionID, "session ended")
	default:
		slog.WarnContext(ctx, "Unexpected bridge event", "channel", domain.ChannelModeratorToListener, "kind", event.Kind)
	}
}

func decodeMessage(ctx context.Context, event domain.BridgeEvent) (*domain.ChatMessage, bool) {
	var msg domain.ChatMessage
	if err := json.Unmarshal(event.Payload, &msg); err != nil || msg.ID == uuid.Nil {
		slog.WarnContext(ctx, "Dropping bridge event with malformed message", "kind", event.Kind, "error", err)
		return nil, false
	}
	return &msg, true
}

func (r *Relay) publish(ctx context.Context, channel domain.Channel, kind string, sessionID uuid.UUID, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to encode bridge payload", "kind", kind, "error", err)
			return
		}
		raw = data
	}

	event := domain.BridgeEvent{
		Kind:        kind,
		SessionID:   sessionID,
		Origin:      r.instanceID,
		Payload:     raw,
		PublishedAt: r.clock.Now().UTC(),
	}
	if err := r.bridge.Publish(ctx, channel, event); err != nil {
		slog.WarnContext(ctx, "Bridge publish failed, delivered locally only",
			"channel", channel, "kind", kind, "session_id", sessionID, "error", err)
	}
}

func (r *Relay) toSession(ctx context.Context, sessionID uuid.UUID, event string, payload any) {
	frame, ok := r.encode(ctx, event, payload)
	if !ok {
		return
	}
	n := r.registry.SendToSession(sessionID, frame)
	r.metrics.FramesSent.WithLabelValues(event).Add(float64(n))
}

func (r *Relay) toStaff(ctx context.Context, event string, payload any) {
	r.fanout(ctx, event, payload, r.registry.SendToStaff)
}

// toModerators carries unmoderated listener traffic.
func (r *Relay) toModerators(ctx context.Context, event string, payload any) {
	r.fanout(ctx, event, payload, r.registry.SendToModerators)
}

func (r *Relay) toOutcomeWatchers(ctx context.Context, status domain.MessageStatus, frame MessageModerated) {
	if status == domain.StatusApproved {
		r.toStaff(ctx, domain.EventMessageModerated, frame)
		return
	}
	r.toModerators(ctx, domain.EventMessageModerated, frame)
}

func (r *Relay) fanout(ctx context.Context, event string, payload any, send func([]byte) int) {
	frame, ok := r.encode(ctx, event, payload)
	if !ok {
		return
	}
	n := send(frame)
	r.metrics.FramesSent.WithLabelValues(event).Add(float64(n))
}

func (r *Relay) reply(ctx context.Context, lc *liveConn, event string, payload any) {
	frame, ok := r.encode(ctx, event, payload)
	if !ok {
		return
	}
	if err := lc.client.Send(frame); err != nil {
		slog.DebugContext(ctx, "Reply not delivered", "event", event, "error", err)
		return
	}
	r.metrics.FramesSent.WithLabelValues(event).Inc()
}

func (r *Relay) replyError(ctx context.Context, lc *liveConn, event, message string) {
	r.reply(ctx, lc, event, ErrorPayload{Message: message})
}

func (r *Relay) encode(ctx context.Context, event string, payload any) ([]byte, bool) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode frame", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}

func (r *Relay) ConnectionCount() int {
	return r.registry.Count()
}
