// Package realtime implements topic based broadcast and presence, and the
// websocket gateway that exposes it to browsers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State of a subscription.
type State string

const (
	StateSubscribed State = "SUBSCRIBED"
	StateClosed     State = "CLOSED"
)

// Event types delivered to subscribers.
const (
	EventSystem          = "system"
	EventBroadcast       = "broadcast"
	EventPresenceSync    = "presence_sync"
	EventPostgresChanges = "postgres_changes"
)

var (
	ErrBrokerClosed  = errors.New("realtime: broker closed")
	ErrNotSubscribed = errors.New("realtime: not subscribed")
	ErrInvalidTopic  = errors.New("realtime: invalid topic")
)

// Event is delivered to subscription event channels.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	Event        string          `json:"event,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Participants []string        `json:"participants,omitempty"`
}

// Presence is the state tracked per subscription.
type Presence struct {
	UserID string `json:"user_id"`
}

// Options configure a subscription.
type Options struct {
	// Self delivers the subscriber's own broadcasts back to it.
	Self bool
}

// Observer receives broker instrumentation callbacks.
type Observer interface {
	SubscriptionOpened(kind string)
	SubscriptionClosed(kind string)
	EventDropped(kind string)
	Broadcasted(kind string)
}

// Config configures a Broker.
type Config struct {
	Buffer   int
	Relay    Relay
	Observer Observer
	Logger   *zap.Logger
}

// Broker routes broadcasts and presence between subscriptions on named
// topics. Delivery never blocks; a full subscriber buffer drops the event.
type Broker struct {
	nodeID   string
	buffer   int
	relay    Relay
	observer Observer
	logger   *zap.Logger

	mu     sync.RWMutex
	topics map[string]map[string]*Subscription
	closed bool
}

// NewBroker constructs a broker.
func NewBroker(cfg Config) *Broker {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Broker{
		nodeID:   uuid.NewString(),
		buffer:   cfg.Buffer,
		relay:    cfg.Relay,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		topics:   make(map[string]map[string]*Subscription),
	}
}

// Run consumes the relay until ctx ends. It returns immediately without a relay.
func (b *Broker) Run(ctx context.Context) error {
	if b.relay == nil {
		return nil
	}
	return b.relay.Run(ctx, func(msg RelayMessage) {
		if msg.Node == b.nodeID {
			return
		}
		b.deliver(msg.Topic, msg.Event, msg.Payload, nil)
	})
}

// Subscribe joins topic. The returned subscription is SUBSCRIBED and already
// holds a system event confirming it.
func (b *Broker) Subscribe(ctx context.Context, topic string, opts Options) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := ParseTopic(topic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopic, err)
	}

	sub := &Subscription{
		id:     uuid.NewString(),
		topic:  topic,
		kind:   string(parsed.Kind),
		self:   opts.Self,
		broker: b,
		events: make(chan Event, b.buffer),
		state:  StateSubscribed,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		b.topics[topic] = subs
	}
	subs[sub.id] = sub
	b.mu.Unlock()

	if b.observer != nil {
		b.observer.SubscriptionOpened(sub.kind)
	}
	status, _ := json.Marshal(map[string]string{"status": string(StateSubscribed)})
	sub.push(Event{Type: EventSystem, Topic: topic, Payload: status})
	return sub, nil
}

// Publish sends a server originated broadcast to every subscriber of topic.
func (b *Broker) Publish(ctx context.Context, topic, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	b.deliver(topic, event, raw, nil)
	return b.relayOut(ctx, topic, event, raw)
}

// Participants returns the de-duplicated, sorted tracked user ids of topic.
func (b *Broker) Participants(topic string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.participantsLocked(topic)
}

// Stats reports the number of live topics and subscriptions.
func (b *Broker) Stats() (topics, subscriptions int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, subs := range b.topics {
		subscriptions += len(subs)
	}
	return len(b.topics), subscriptions
}

// Close ends every subscription and rejects new ones.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.topics {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	if b.relay != nil {
		return b.relay.Close()
	}
	return nil
}

func (b *Broker) deliver(topic, event string, payload json.RawMessage, sender *Subscription) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.topics[topic]))
	for _, s := range b.topics[topic] {
		if s == sender && !s.self {
			continue
		}
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	ev := Event{Type: EventBroadcast, Topic: topic, Event: event, Payload: payload}
	for _, s := range targets {
		s.push(ev)
	}
	if b.observer != nil {
		if parsed, err := ParseTopic(topic); err == nil {
			b.observer.Broadcasted(string(parsed.Kind))
		}
	}
}

func (b *Broker) relayOut(ctx context.Context, topic, event string, payload json.RawMessage) error {
	if b.relay == nil {
		return nil
	}
	if err := b.relay.Publish(ctx, RelayMessage{Node: b.nodeID, Topic: topic, Event: event, Payload: payload}); err != nil {
		b.logger.Warn("relay publish failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	return nil
}

func (b *Broker) syncPresence(topic string) {
	b.mu.RLock()
	participants := b.participantsLocked(topic)
	targets := make([]*Subscription, 0, len(b.topics[topic]))
	for _, s := range b.topics[topic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.push(Event{Type: EventPresenceSync, Topic: topic, Participants: participants})
	}
}

func (b *Broker) participantsLocked(topic string) []string {
	seen := map[string]struct{}{}
	for _, s := range b.topics[topic] {
		if p := s.tracked(); p != nil && p.UserID != "" {
			seen[p.UserID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	if subs, ok := b.topics[s.topic]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(b.topics, s.topic)
		}
	}
	b.mu.Unlock()
}

// Subscription is one connection's membership in a topic.
type Subscription struct {
	id     string
	topic  string
	kind   string
	self   bool
	broker *Broker
	events chan Event

	mu       sync.Mutex
	state    State
	presence *Presence
}

// Topic returns the subscribed topic name.
func (s *Subscription) Topic() string { return s.topic }

// Events delivers broadcasts, presence syncs and system events. It is closed
// when the subscription closes.
func (s *Subscription) Events() <-chan Event { return s.events }

// State returns the subscription state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Broadcast sends payload to the topic, excluding this subscription unless
// it was opened with Self.
func (s *Subscription) Broadcast(ctx context.Context, event string, payload interface{}) error {
	if s.State() != StateSubscribed {
		return ErrNotSubscribed
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	s.broker.deliver(s.topic, event, raw, s)
	return s.broker.relayOut(ctx, s.topic, event, raw)
}

// Track sets this subscription's presence and syncs the topic.
func (s *Subscription) Track(p Presence) error {
	s.mu.Lock()
	if s.state != StateSubscribed {
		s.mu.Unlock()
		return ErrNotSubscribed
	}
	s.presence = &p
	s.mu.Unlock()

	s.broker.syncPresence(s.topic)
	return nil
}

// Untrack clears this subscription's presence.
func (s *Subscription) Untrack() error {
	s.mu.Lock()
	if s.state != StateSubscribed {
		s.mu.Unlock()
		return ErrNotSubscribed
	}
	had := s.presence != nil
	s.presence = nil
	s.mu.Unlock()

	if had {
		s.broker.syncPresence(s.topic)
	}
	return nil
}

// Participants returns the topic's current participants.
func (s *Subscription) Participants() []string {
	return s.broker.Participants(s.topic)
}

// Close untracks, leaves the topic and closes the event channel. It is safe
// to call more than once.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	had := s.presence != nil
	s.presence = nil
	close(s.events)
	s.mu.Unlock()

	s.broker.remove(s)
	if had {
		s.broker.syncPresence(s.topic)
	}
	if s.broker.observer != nil {
		s.broker.observer.SubscriptionClosed(s.kind)
	}
	return nil
}

func (s *Subscription) tracked() *Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubscribed {
		return
	}
	select {
	case s.events <- ev:
	default:
		if s.broker.observer != nil {
			s.broker.observer.EventDropped(s.kind)
		}
	}
}
