package websocket

import (
	"encoding/json"
	"time"

	"github.com/martin-1103/gbika-sub001/internal/domain"
)

// Wire event names that are not also bridge event kinds.
const (
	EventConnectionSuccess   = "connection:success"
	EventMessageSend         = "message:send"
	EventMessageAck          = "message:ack"
	EventErrorInvalidEvent   = "error:invalid_event"
	EventErrorInvalidPayload = "error:invalid_payload"
	EventErrorServer         = "error:server_error"
)

type inboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type outboundFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Payload: payload})
}

type UserInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city"`
	Country string `json:"country"`
}

func userInfo(c domain.Connection) UserInfo {
	return UserInfo{ID: c.ParticipantID, Name: c.DisplayName, City: c.City, Country: c.Country}
}

type ConnectionSuccess struct {
	SessionID string      `json:"sessionId,omitempty"`
	User      UserInfo    `json:"user"`
	Role      domain.Role `json:"role"`
}

type MessageSend struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId,omitempty"`
}

type MessageAck struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingIn struct {
	IsTyping bool `json:"isTyping"`
}

type MessageReceive struct {
	MessageID string    `json:"messageId"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func messageReceive(m *domain.ChatMessage) MessageReceive {
	from := m.SenderDisplayName
	if from == "" {
		from = "Admin"
	}
	return MessageReceive{MessageID: m.ID.String(), From: from, Text: m.Text, Timestamp: m.CreatedAt}
}

// MessageNew is pushed to staff when a listener submits a message.
type MessageNew struct {
	Message *domain.ChatMessage `json:"message"`
	From    UserInfo            `json:"from"`
}

type TypingOut struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	IsTyping  bool   `json:"isTyping"`
}

type MessageModerated struct {
	MessageID   string               `json:"messageId"`
	SessionID   string               `json:"sessionId"`
	Status      domain.MessageStatus `json:"status"`
	Text        string               `json:"text"`
	ModeratedBy *string              `json:"moderatedBy"`
	ModeratedAt *time.Time           `json:"moderatedAt"`
}

func messageModerated(m *domain.ChatMessage) MessageModerated {
	return MessageModerated{
		MessageID:   m.ID.String(),
		SessionID:   m.SessionID.String(),
		Status:      m.Status,
		Text:        m.Text,
		ModeratedBy: m.ModeratedBy,
		ModeratedAt: m.ModeratedAt,
	}
}

type ErrorPayload struct {
	Message string `json:"message"`
}
