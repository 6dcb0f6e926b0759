// Package chat provides the two chat channel variants used by help requests
// and help queues. Both expose the same contract and track the participant's
// presence on the underlying realtime topic.
package chat

import (
	"context"
	"errors"

	"github.com/pawtograder/office-hours/internal/models"
)

// ErrNotSubscribed is returned when posting to a channel that is not live.
var ErrNotSubscribed = errors.New("chat: channel not subscribed")

// Channel is the contract shared by durable and ephemeral chat.
type Channel interface {
	Topic() string
	Messages() []models.ChatMessage
	PostMessage(ctx context.Context, text string) (*models.ChatMessage, error)
	Participants() []string
	Close() error
}

// Participant identifies who holds a channel handle.
type Participant struct {
	ProfileID string
	Staff     bool
}

// Observer receives chat instrumentation callbacks.
type Observer interface {
	MessagePosted(kind string)
}

const (
	KindDurable   = "durable"
	KindEphemeral = "ephemeral"
)
