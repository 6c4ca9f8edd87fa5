// ABOUTME: Message entity and its JSON wire form, shared by archives and live channels
// ABOUTME: The same encoding is stored in archive sets and published on channels

package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/pairwise/internal/identity"
)

// Message is one immutable note from one user to another.
type Message struct {
	Text      string
	From      identity.User
	To        identity.User
	CreatedAt time.Time
}

type wireUser struct {
	Role identity.Role `json:"role"`
	Name string        `json:"name"`
}

type wireMessage struct {
	Text      string    `json:"text"`
	From      wireUser  `json:"from"`
	To        wireUser  `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}

// Encode returns the JSON form stored in archives and published on channels.
func (m *Message) Encode() (string, error) {
	data, err := json.Marshal(wireMessage{
		Text:      m.Text,
		From:      wireUser{Role: m.From.Role, Name: m.From.Name},
		To:        wireUser{Role: m.To.Role, Name: m.To.Name},
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("encoding message: %w", err)
	}
	return string(data), nil
}

// DecodeMessage parses the JSON form produced by Encode.
func DecodeMessage(payload string) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &Message{
		Text:      w.Text,
		From:      identity.User{Role: w.From.Role, Name: w.From.Name},
		To:        identity.User{Role: w.To.Role, Name: w.To.Name},
		CreatedAt: w.CreatedAt,
	}, nil
}
