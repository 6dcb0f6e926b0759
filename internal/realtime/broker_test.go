package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, sub *Subscription, typ string) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "events channel closed")
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
		}
	}
}

func none(t *testing.T, sub *Subscription, typ string) {
	t.Helper()
	for {
		select {
		case ev := <-sub.Events():
			require.NotEqual(t, typ, ev.Type, "unexpected %s event", typ)
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func TestSubscribeConfirms(t *testing.T) {
	b := NewBroker(Config{})
	sub, err := b.Subscribe(context.Background(), HelpRequestTopic(5), Options{})
	require.NoError(t, err)
	assert.Equal(t, StateSubscribed, sub.State())

	ev := next(t, sub, EventSystem)
	assert.JSONEq(t, `{"status":"SUBSCRIBED"}`, string(ev.Payload))
}

func TestSubscribeRejectsBadTopicAndClosedBroker(t *testing.T) {
	b := NewBroker(Config{})
	_, err := b.Subscribe(context.Background(), "general", Options{})
	assert.ErrorIs(t, err, ErrInvalidTopic)

	require.NoError(t, b.Close())
	_, err = b.Subscribe(context.Background(), MeetingEndTopic, Options{})
	assert.ErrorIs(t, err, ErrBrokerClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewBroker(Config{}).Subscribe(ctx, MeetingEndTopic, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBroadcastSelfEcho(t *testing.T) {
	b := NewBroker(Config{})
	topic := HelpQueueTopic(1, 2)
	quiet, err := b.Subscribe(context.Background(), topic, Options{})
	require.NoError(t, err)
	echo, err := b.Subscribe(context.Background(), topic, Options{Self: true})
	require.NoError(t, err)

	require.NoError(t, quiet.Broadcast(context.Background(), "chat_message", map[string]string{"m": "hi"}))
	ev := next(t, echo, EventBroadcast)
	assert.Equal(t, "chat_message", ev.Event)
	none(t, quiet, EventBroadcast)

	require.NoError(t, echo.Broadcast(context.Background(), "chat_message", map[string]string{"m": "back"}))
	next(t, echo, EventBroadcast)
	ev = next(t, quiet, EventBroadcast)
	var body map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &body))
	assert.Equal(t, "back", body["m"])
}

func TestPresenceDedupesUsers(t *testing.T) {
	b := NewBroker(Config{})
	topic := HelpRequestTopic(9)
	tab1, _ := b.Subscribe(context.Background(), topic, Options{})
	tab2, _ := b.Subscribe(context.Background(), topic, Options{})
	other, _ := b.Subscribe(context.Background(), topic, Options{})

	require.NoError(t, tab1.Track(Presence{UserID: "u-2"}))
	require.NoError(t, tab2.Track(Presence{UserID: "u-2"}))
	require.NoError(t, other.Track(Presence{UserID: "u-1"}))

	assert.Equal(t, []string{"u-1", "u-2"}, other.Participants())

	require.NoError(t, tab1.Close())
	assert.Equal(t, []string{"u-1", "u-2"}, other.Participants())

	require.NoError(t, tab2.Close())
	assert.Equal(t, []string{"u-1"}, other.Participants())

	var last Event
	for {
		select {
		case ev := <-other.Events():
			if ev.Type == EventPresenceSync {
				last = ev
			}
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}
	assert.Equal(t, []string{"u-1"}, last.Participants)
}

func TestCloseReleasesSubscription(t *testing.T) {
	b := NewBroker(Config{})
	sub, _ := b.Subscribe(context.Background(), MeetingEndTopic, Options{})
	topics, subs := b.Stats()
	assert.Equal(t, 1, topics)
	assert.Equal(t, 1, subs)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, StateClosed, sub.State())
	assert.ErrorIs(t, sub.Broadcast(context.Background(), "x", nil), ErrNotSubscribed)
	assert.ErrorIs(t, sub.Track(Presence{UserID: "u"}), ErrNotSubscribed)

	topics, subs = b.Stats()
	assert.Zero(t, topics)
	assert.Zero(t, subs)

	for range sub.Events() {
	}
}

type countingObserver struct {
	mu      sync.Mutex
	dropped int
	opened  int
	closed  int
}

func (o *countingObserver) SubscriptionOpened(string) { o.mu.Lock(); o.opened++; o.mu.Unlock() }
func (o *countingObserver) SubscriptionClosed(string) { o.mu.Lock(); o.closed++; o.mu.Unlock() }
func (o *countingObserver) EventDropped(string)       { o.mu.Lock(); o.dropped++; o.mu.Unlock() }
func (o *countingObserver) Broadcasted(string)        {}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	obs := &countingObserver{}
	b := NewBroker(Config{Buffer: 2, Observer: obs})
	slow, _ := b.Subscribe(context.Background(), MeetingEndTopic, Options{})

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(context.Background(), MeetingEndTopic, "meeting_ended", map[string]int{"i": i}))
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.opened)
	assert.Equal(t, 4, obs.dropped)
	assert.Len(t, slow.Events(), 2)
}

type memoryRelay struct {
	mu      sync.Mutex
	sent    []RelayMessage
	deliver func(RelayMessage)
	ready   chan struct{}
}

func (r *memoryRelay) Publish(ctx context.Context, msg RelayMessage) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

func (r *memoryRelay) Run(ctx context.Context, deliver func(RelayMessage)) error {
	r.mu.Lock()
	r.deliver = deliver
	r.mu.Unlock()
	close(r.ready)
	<-ctx.Done()
	return nil
}

func (r *memoryRelay) Close() error { return nil }

func TestRelayForwardsRemoteBroadcasts(t *testing.T) {
	relay := &memoryRelay{ready: make(chan struct{})}
	b := NewBroker(Config{Relay: relay})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx) }()
	<-relay.ready

	sub, _ := b.Subscribe(ctx, HelpQueueTopic(1, 1), Options{})
	require.NoError(t, sub.Broadcast(ctx, "chat_message", "local"))

	relay.mu.Lock()
	require.Len(t, relay.sent, 1)
	own := relay.sent[0]
	deliver := relay.deliver
	relay.mu.Unlock()

	deliver(own)
	none(t, sub, EventBroadcast)

	deliver(RelayMessage{Node: "other-node", Topic: HelpQueueTopic(1, 1), Event: "chat_message", Payload: json.RawMessage(`"remote"`)})
	ev := next(t, sub, EventBroadcast)
	assert.Equal(t, `"remote"`, string(ev.Payload))
}
