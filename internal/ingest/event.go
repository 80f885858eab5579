// Package ingest consumes chat-message events from Pub/Sub and feeds them
// into the same notification path the HTTP API uses.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent marks an event that can never be processed and should go
// to the dead-letter topic.
var ErrMalformedEvent = errors.New("malformed chat message event")

// ChatMessageEvent is the wire shape published by the chat backend when a
// message is persisted. Field names match the HTTP request body.
type ChatMessageEvent struct {
	ChatID      string `json:"chatId"`
	SenderID    string `json:"senderId"`
	MessageText string `json:"messageText"`
	EventID     string `json:"eventId,omitempty"`
}

// ParseChatMessageEvent decodes and validates a raw event payload.
func ParseChatMessageEvent(data []byte) (*ChatMessageEvent, error) {
	var event ChatMessageEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedEvent, err)
	}
	if event.ChatID == "" || event.SenderID == "" || event.MessageText == "" {
		return nil, fmt.Errorf("%w: missing chatId, senderId or messageText", ErrMalformedEvent)
	}
	return &event, nil
}
