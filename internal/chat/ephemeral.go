package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/realtime"
)

const (
	// ChatMessageEvent is the broadcast event name of queue chat.
	ChatMessageEvent = "chat_message"
	// MessageLifetime is how long an ephemeral message stays in the buffer.
	MessageLifetime = time.Hour
	// SweepInterval is how often expired ephemeral messages are dropped.
	SweepInterval = 60 * time.Second
)

// EphemeralPayload is the broadcast body of a queue chat message.
type EphemeralPayload struct {
	Type    string                      `json:"type"`
	Event   string                      `json:"event"`
	Message models.EphemeralChatMessage `json:"message"`
}

// EphemeralConfig carries the collaborators of an ephemeral channel.
type EphemeralConfig struct {
	Broker   *realtime.Broker
	Observer Observer
	Logger   *zap.Logger
	Now      func() time.Time
}

// EphemeralChannel is a help queue's broadcast only chat. Messages live in
// memory for MessageLifetime, in receipt order.
type EphemeralChannel struct {
	who      Participant
	sub      *realtime.Subscription
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	messages []models.EphemeralChatMessage
	stop     chan struct{}
	once     sync.Once
	done     chan struct{}
}

// OpenEphemeral subscribes to the queue topic with self echo and tracks who.
func OpenEphemeral(ctx context.Context, cfg EphemeralConfig, classID, queueID int64, who Participant) (*EphemeralChannel, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	sub, err := cfg.Broker.Subscribe(ctx, realtime.HelpQueueTopic(classID, queueID), realtime.Options{Self: true})
	if err != nil {
		return nil, fmt.Errorf("subscribe help queue %d: %w", queueID, err)
	}
	if err := sub.Track(realtime.Presence{UserID: who.ProfileID}); err != nil {
		_ = sub.Close()
		return nil, err
	}

	c := &EphemeralChannel{
		who:      who,
		sub:      sub,
		observer: cfg.Observer,
		logger:   cfg.Logger.With(zap.String("topic", sub.Topic())),
		now:      cfg.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.receive()
	go c.sweepLoop()
	return c, nil
}

// Topic returns the realtime topic.
func (c *EphemeralChannel) Topic() string { return c.sub.Topic() }

// Messages returns the buffered messages in receipt order.
func (c *EphemeralChannel) Messages() []models.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ChatMessage, len(c.messages))
	for i, m := range c.messages {
		out[i] = models.ChatMessage{ID: m.ID, Message: m.Message, Author: m.Author, CreatedAt: m.CreatedAt}
	}
	return out
}

// PostMessage broadcasts text to everyone on the topic, including this channel.
func (c *EphemeralChannel) PostMessage(ctx context.Context, text string) (*models.ChatMessage, error) {
	if c.sub.State() != realtime.StateSubscribed {
		return nil, ErrNotSubscribed
	}
	msg := models.EphemeralChatMessage{
		ID:        uuid.NewString(),
		Message:   text,
		Author:    c.who.ProfileID,
		CreatedAt: c.now().UTC(),
	}
	payload := EphemeralPayload{Type: realtime.EventBroadcast, Event: ChatMessageEvent, Message: msg}
	if err := c.sub.Broadcast(ctx, ChatMessageEvent, payload); err != nil {
		return nil, err
	}
	if c.observer != nil {
		c.observer.MessagePosted(KindEphemeral)
	}
	return &models.ChatMessage{ID: msg.ID, Message: msg.Message, Author: msg.Author, CreatedAt: msg.CreatedAt}, nil
}

// Participants returns the de-duplicated profile ids present on the topic.
func (c *EphemeralChannel) Participants() []string { return c.sub.Participants() }

// Close stops the sweeper, untracks and leaves the topic.
func (c *EphemeralChannel) Close() error {
	c.once.Do(func() { close(c.stop) })
	return c.sub.Close()
}

func (c *EphemeralChannel) receive() {
	defer close(c.done)
	for ev := range c.sub.Events() {
		if ev.Type != realtime.EventBroadcast || ev.Event != ChatMessageEvent {
			continue
		}
		var payload EphemeralPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.Message.ID == "" {
			c.logger.Debug("ignoring malformed chat payload", zap.Error(err))
			continue
		}
		c.mu.Lock()
		c.messages = append(c.messages, payload.Message)
		c.mu.Unlock()
	}
}

func (c *EphemeralChannel) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep drops messages older than MessageLifetime and returns how many went.
func (c *EphemeralChannel) sweep() int {
	cutoff := c.now().Add(-MessageLifetime)
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.CreatedAt.After(cutoff) {
			kept = append(kept, m)
		}
	}
	dropped := len(c.messages) - len(kept)
	c.messages = kept
	return dropped
}
