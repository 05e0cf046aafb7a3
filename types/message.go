package types

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies the intent of a message exchanged between agents.
type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypeError    MessageType = "error"
	MessageTypeEvent    MessageType = "event"
)

// Message is a single unit of communication between agents. A message is
// immutable once sent: replies carry a fresh id rather than mutating the
// original.
type Message struct {
	ID          string         `json:"message_id"`
	SenderID    string         `json:"sender_id"`
	RecipientID string         `json:"recipient_id"`
	Content     string         `json:"content"`
	Type        MessageType    `json:"message_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewMessage creates a message with a generated id and the current time.
func NewMessage(sender, recipient string, mt MessageType, content string) Message {
	return Message{
		ID:          uuid.New().String(),
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		Type:        mt,
		Timestamp:   time.Now(),
	}
}

// NewRequest creates a request message.
func NewRequest(sender, recipient, content string) Message {
	return NewMessage(sender, recipient, MessageTypeRequest, content)
}

// Reply builds a response to m: fresh id, sender and recipient swapped.
// The original message is not modified.
func (m Message) Reply(mt MessageType, content string) Message {
	return Message{
		ID:          uuid.New().String(),
		SenderID:    m.RecipientID,
		RecipientID: m.SenderID,
		Content:     content,
		Type:        mt,
		Timestamp:   time.Now(),
	}
}

// ErrorReply builds a well-formed error-type response to m. Agents return
// this instead of propagating raw failures so that every request yields
// exactly one response.
func (m Message) ErrorReply(reason string) Message {
	return m.Reply(MessageTypeError, reason)
}
