package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/realtime"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Broker      *realtime.Broker
	Store       MessageStore
	Feed        MessageFeed
	Observer    Observer
	IdleTimeout time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// Registry keeps one open channel per (topic, participant), opened lazily and
// closed after IdleTimeout without use. An HTTP client that keeps reading a
// chat therefore stays present on its topic.
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger

	mu       sync.Mutex
	channels map[string]*entry
	closed   bool
}

type entry struct {
	channel  Channel
	lastUsed time.Time
}

// NewRegistry constructs a registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	return &Registry{cfg: cfg, logger: cfg.Logger, channels: make(map[string]*entry)}
}

// Durable returns who's channel for request, opening it when needed.
func (r *Registry) Durable(ctx context.Context, request models.HelpRequest, who Participant) (*DurableChannel, error) {
	ch, err := r.get(ctx, realtime.HelpRequestTopic(request.ID), who, func() (Channel, error) {
		return OpenDurable(ctx, DurableConfig{
			Broker:   r.cfg.Broker,
			Store:    r.cfg.Store,
			Feed:     r.cfg.Feed,
			Observer: r.cfg.Observer,
			Logger:   r.logger,
		}, request, who)
	})
	if err != nil {
		return nil, err
	}
	return ch.(*DurableChannel), nil
}

// Ephemeral returns who's channel for the queue, opening it when needed.
func (r *Registry) Ephemeral(ctx context.Context, classID, queueID int64, who Participant) (*EphemeralChannel, error) {
	ch, err := r.get(ctx, realtime.HelpQueueTopic(classID, queueID), who, func() (Channel, error) {
		return OpenEphemeral(ctx, EphemeralConfig{
			Broker:   r.cfg.Broker,
			Observer: r.cfg.Observer,
			Logger:   r.logger,
			Now:      r.cfg.Now,
		}, classID, queueID, who)
	})
	if err != nil {
		return nil, err
	}
	return ch.(*EphemeralChannel), nil
}

func (r *Registry) get(ctx context.Context, topic string, who Participant, open func() (Channel, error)) (Channel, error) {
	key := fmt.Sprintf("%s|%s|%t", topic, who.ProfileID, who.Staff)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, realtime.ErrBrokerClosed
	}
	if e, ok := r.channels[key]; ok {
		e.lastUsed = r.cfg.Now()
		return e.channel, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch, err := open()
	if err != nil {
		return nil, err
	}
	r.channels[key] = &entry{channel: ch, lastUsed: r.cfg.Now()}
	return ch, nil
}

// Len reports the number of open channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// CloseIdle closes channels unused for IdleTimeout and returns how many.
func (r *Registry) CloseIdle() int {
	cutoff := r.cfg.Now().Add(-r.cfg.IdleTimeout)
	var idle []Channel

	r.mu.Lock()
	for key, e := range r.channels {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e.channel)
			delete(r.channels, key)
		}
	}
	r.mu.Unlock()

	for _, ch := range idle {
		if err := ch.Close(); err != nil {
			r.logger.Warn("close idle chat channel", zap.String("topic", ch.Topic()), zap.Error(err))
		}
	}
	return len(idle)
}

// Run closes idle channels every interval until ctx ends, then closes all.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			if n := r.CloseIdle(); n > 0 {
				r.logger.Debug("closed idle chat channels", zap.Int("count", n))
			}
		}
	}
}

// Close closes every channel and rejects new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	channels := r.channels
	r.channels = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range channels {
		_ = e.channel.Close()
	}
}
