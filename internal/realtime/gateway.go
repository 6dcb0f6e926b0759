package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/tablecache"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	sendBuffer   = 256
)

// Client frame types.
const (
	FrameSubscribe       = "subscribe"
	FrameUnsubscribe     = "unsubscribe"
	FrameBroadcast       = "broadcast"
	FramePresenceTrack   = "presence_track"
	FramePresenceUntrack = "presence_untrack"
	FrameError           = "error"
)

// ClientFrame is a message received from a browser.
type ClientFrame struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Topic   string          `json:"topic"`
	Event   string          `json:"event,omitempty"`
	Self    bool            `json:"self,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerFrame is a message sent to a browser.
type ServerFrame struct {
	Type         string          `json:"type"`
	Ref          string          `json:"ref,omitempty"`
	Topic        string          `json:"topic,omitempty"`
	Event        string          `json:"event,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Participants []string        `json:"participants,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// Access describes what a user may do on a topic.
type Access struct {
	ProfileID string
	Staff     bool
	Banned    bool
}

// ErrTopicForbidden is returned by authorizers to deny a topic.
var ErrTopicForbidden = errors.New("realtime: topic forbidden")

// Authorizer decides whether userID may join topic.
type Authorizer interface {
	AuthorizeTopic(ctx context.Context, userID string, topic Topic) (*Access, error)
}

// MessageFeed streams durable chat message changes.
type MessageFeed interface {
	Subscribe(fn func(tablecache.Change[models.HelpRequestMessage])) (unsubscribe func())
}

// GatewayConfig configures the websocket gateway.
type GatewayConfig struct {
	MaxMessageBytes int64
	AllowedOrigins  []string
	Logger          *zap.Logger
}

// Gateway upgrades HTTP requests and bridges websocket frames to the broker.
type Gateway struct {
	broker   *Broker
	auth     Authorizer
	messages MessageFeed
	upgrader websocket.Upgrader
	maxBytes int64
	logger   *zap.Logger
}

// NewGateway constructs a gateway.
func NewGateway(broker *Broker, auth Authorizer, messages MessageFeed, cfg GatewayConfig) *Gateway {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 8192
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &Gateway{
		broker:   broker,
		auth:     auth,
		messages: messages,
		maxBytes: cfg.MaxMessageBytes,
		logger:   cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[strings.TrimRight(r.Header.Get("Origin"), "/")]
				return ok
			},
		},
	}
}

// Serve upgrades the request for the authenticated userID and blocks until
// the connection ends.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &connection{
		gateway: g,
		ws:      ws,
		userID:  userID,
		send:    make(chan ServerFrame, sendBuffer),
		topics:  make(map[string]*joined),
		stop:    make(chan struct{}),
		logger:  g.logger.With(zap.String("user_id", userID)),
	}
	go c.write()
	c.read(r.Context())
}

type joined struct {
	sub          *Subscription
	topic        Topic
	access       Access
	ref          string
	stopMessages func()
}

type connection struct {
	gateway *Gateway
	ws      *websocket.Conn
	userID  string
	send    chan ServerFrame
	logger  *zap.Logger

	mu     sync.Mutex
	topics map[string]*joined
	stop   chan struct{}
}

func (c *connection) read(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.cleanup()
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.gateway.maxBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.queue(ServerFrame{Type: FrameError, Message: "invalid message"})
			continue
		}
		c.handle(ctx, frame)
	}
}

func (c *connection) handle(ctx context.Context, f ClientFrame) {
	switch f.Type {
	case FrameSubscribe:
		c.subscribe(ctx, f)
	case FrameUnsubscribe:
		c.unsubscribe(f)
	case FrameBroadcast:
		c.broadcast(ctx, f)
	case FramePresenceTrack:
		j := c.joined(f)
		if j == nil {
			return
		}
		userID := j.access.ProfileID
		if userID == "" {
			userID = c.userID
		}
		if err := j.sub.Track(Presence{UserID: userID}); err != nil {
			c.fail(f, err.Error())
		}
	case FramePresenceUntrack:
		j := c.joined(f)
		if j == nil {
			return
		}
		if err := j.sub.Untrack(); err != nil {
			c.fail(f, err.Error())
		}
	default:
		c.fail(f, "unknown message type")
	}
}

func (c *connection) subscribe(ctx context.Context, f ClientFrame) {
	topic, err := ParseTopic(f.Topic)
	if err != nil {
		c.fail(f, "unknown topic")
		return
	}

	c.mu.Lock()
	_, exists := c.topics[f.Topic]
	c.mu.Unlock()
	if exists {
		c.fail(f, "already subscribed")
		return
	}

	access, err := c.gateway.auth.AuthorizeTopic(ctx, c.userID, topic)
	if err != nil {
		if errors.Is(err, ErrTopicForbidden) {
			c.fail(f, "forbidden")
		} else {
			c.logger.Error("authorize topic failed", zap.String("topic", f.Topic), zap.Error(err))
			c.fail(f, "internal error")
		}
		return
	}

	sub, err := c.gateway.broker.Subscribe(ctx, f.Topic, Options{Self: f.Self})
	if err != nil {
		c.fail(f, err.Error())
		return
	}

	j := &joined{sub: sub, topic: topic, access: *access, ref: f.Ref}
	if topic.Kind == KindHelpRequest && c.gateway.messages != nil {
		j.stopMessages = c.gateway.messages.Subscribe(func(ch tablecache.Change[models.HelpRequestMessage]) {
			if ch.Type == tablecache.ChangeResync || ch.Row.HelpRequestID != topic.HelpRequestID {
				return
			}
			if ch.Row.InstructorsOnly && !j.access.Staff {
				return
			}
			record, err := json.Marshal(ch.Row)
			if err != nil {
				return
			}
			c.queue(ServerFrame{Type: EventPostgresChanges, Topic: f.Topic, Event: string(ch.Type), Payload: record})
		})
	}

	c.mu.Lock()
	c.topics[f.Topic] = j
	c.mu.Unlock()

	go c.forward(j)
}

func (c *connection) forward(j *joined) {
	for ev := range j.sub.Events() {
		frame := ServerFrame{
			Type:         ev.Type,
			Topic:        ev.Topic,
			Event:        ev.Event,
			Payload:      ev.Payload,
			Participants: ev.Participants,
		}
		if ev.Type == EventSystem {
			frame.Ref = j.ref
		}
		if ev.Type == EventPresenceSync && frame.Participants == nil {
			frame.Participants = []string{}
		}
		c.queue(frame)
	}
}

func (c *connection) unsubscribe(f ClientFrame) {
	c.mu.Lock()
	j, ok := c.topics[f.Topic]
	delete(c.topics, f.Topic)
	c.mu.Unlock()
	if !ok {
		c.fail(f, "not subscribed")
		return
	}
	c.release(j)
}

func (c *connection) broadcast(ctx context.Context, f ClientFrame) {
	j := c.joined(f)
	if j == nil {
		return
	}
	if j.access.Banned && j.topic.Kind != KindMeetingEnd {
		c.fail(f, "banned")
		return
	}
	if f.Event == "" {
		c.fail(f, "event required")
		return
	}
	payload := f.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if err := j.sub.Broadcast(ctx, f.Event, payload); err != nil {
		c.fail(f, err.Error())
	}
}

func (c *connection) joined(f ClientFrame) *joined {
	c.mu.Lock()
	j := c.topics[f.Topic]
	c.mu.Unlock()
	if j == nil {
		c.fail(f, "not subscribed")
	}
	return j
}

func (c *connection) release(j *joined) {
	if j.stopMessages != nil {
		j.stopMessages()
	}
	_ = j.sub.Close()
}

func (c *connection) cleanup() {
	c.mu.Lock()
	topics := c.topics
	c.topics = map[string]*joined{}
	c.mu.Unlock()

	for _, j := range topics {
		c.release(j)
	}
	close(c.stop)
}

func (c *connection) fail(f ClientFrame, msg string) {
	c.queue(ServerFrame{Type: FrameError, Ref: f.Ref, Topic: f.Topic, Message: msg})
}

func (c *connection) queue(frame ServerFrame) {
	select {
	case <-c.stop:
		return
	default:
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("websocket send buffer full, dropping frame", zap.String("type", frame.Type), zap.String("topic", frame.Topic))
	}
}

func (c *connection) write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(frame); err != nil {
				return
			}
		case <-c.stop:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
