package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks a payload that can never be processed, no matter how often it is redelivered.
var ErrMalformed = errors.New("malformed message payload")

// IncomingMessage is the queue payload published by the messaging service.
type IncomingMessage struct {
	ChatID        string `json:"chat_id"`
	UserID        string `json:"user_id"`
	Content       string `json:"content"`
	ApplicationID string `json:"applicationId,omitempty"`
}

// DecodeIncoming parses a delivery body. Both "applicationId" and "application_id" are accepted,
// since producers have used either spelling.
func DecodeIncoming(body []byte) (IncomingMessage, error) {
	var raw struct {
		IncomingMessage
		ApplicationIDSnake string `json:"application_id"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return IncomingMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m := raw.IncomingMessage
	if m.ApplicationID == "" {
		m.ApplicationID = raw.ApplicationIDSnake
	}
	m.ChatID = strings.TrimSpace(m.ChatID)
	m.UserID = strings.TrimSpace(m.UserID)
	m.ApplicationID = strings.TrimSpace(m.ApplicationID)

	if m.ChatID == "" || m.UserID == "" {
		return IncomingMessage{}, fmt.Errorf("%w: chat_id and user_id are required", ErrMalformed)
	}
	return m, nil
}
