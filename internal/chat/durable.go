package chat

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/realtime"
	"github.com/pawtograder/office-hours/internal/tablecache"
)

// HistoryLimit bounds the durable history loaded on open.
const HistoryLimit = 1000

const reloadTimeout = 10 * time.Second

// MessageStore persists durable messages.
type MessageStore interface {
	ListByRequest(ctx context.Context, requestID int64, limit int) ([]models.HelpRequestMessage, error)
	Create(ctx context.Context, msg *models.HelpRequestMessage) error
}

// MessageFeed is the live change stream of help_request_messages.
type MessageFeed interface {
	Subscribe(fn func(tablecache.Change[models.HelpRequestMessage])) (unsubscribe func())
	Apply(typ tablecache.ChangeType, row models.HelpRequestMessage)
}

// DurableChannel is a help request's persisted chat.
type DurableChannel struct {
	request  models.HelpRequest
	who      Participant
	sub      *realtime.Subscription
	store    MessageStore
	feed     MessageFeed
	observer Observer
	logger   *zap.Logger

	mu       sync.RWMutex
	messages map[int64]models.HelpRequestMessage
	stopFeed func()
	done     chan struct{}
}

// DurableConfig carries the collaborators of a durable channel.
type DurableConfig struct {
	Broker   *realtime.Broker
	Store    MessageStore
	Feed     MessageFeed
	Observer Observer
	Logger   *zap.Logger
}

// OpenDurable subscribes to the request's topic with self echo, tracks who,
// follows the message feed and loads history.
func OpenDurable(ctx context.Context, cfg DurableConfig, request models.HelpRequest, who Participant) (*DurableChannel, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	sub, err := cfg.Broker.Subscribe(ctx, realtime.HelpRequestTopic(request.ID), realtime.Options{Self: true})
	if err != nil {
		return nil, fmt.Errorf("subscribe help request %d: %w", request.ID, err)
	}

	c := &DurableChannel{
		request:  request,
		who:      who,
		sub:      sub,
		store:    cfg.Store,
		feed:     cfg.Feed,
		observer: cfg.Observer,
		logger:   cfg.Logger.With(zap.Int64("help_request_id", request.ID)),
		messages: make(map[int64]models.HelpRequestMessage),
		done:     make(chan struct{}),
	}
	if err := sub.Track(realtime.Presence{UserID: who.ProfileID}); err != nil {
		_ = sub.Close()
		return nil, err
	}
	go c.drain()

	if c.feed != nil {
		c.stopFeed = c.feed.Subscribe(c.onChange)
	}
	history, err := c.store.ListByRequest(ctx, request.ID, HistoryLimit)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.mu.Lock()
	for _, m := range history {
		c.messages[m.ID] = m
	}
	c.mu.Unlock()
	return c, nil
}

// reload replaces the history after the feed resynchronised, dropping rows
// deleted while notifications were lost. Rows newer than the reloaded history
// arrived through the feed meanwhile and are kept.
func (c *DurableChannel) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	history, err := c.store.ListByRequest(ctx, c.request.ID, HistoryLimit)
	if err != nil {
		c.logger.Warn("durable history reload failed", zap.Error(err))
		return
	}

	fresh := make(map[int64]models.HelpRequestMessage, len(history))
	var newest int64
	for _, m := range history {
		fresh[m.ID] = m
		if m.ID > newest {
			newest = m.ID
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopFeed == nil {
		return
	}
	for id, m := range c.messages {
		if id > newest {
			fresh[id] = m
		}
	}
	c.messages = fresh
}

// Topic returns the realtime topic.
func (c *DurableChannel) Topic() string { return c.sub.Topic() }

// Messages returns the visible history in creation order. Instructor only
// messages are hidden from students.
func (c *DurableChannel) Messages() []models.ChatMessage {
	c.mu.RLock()
	rows := make([]models.HelpRequestMessage, 0, len(c.messages))
	for _, m := range c.messages {
		if m.InstructorsOnly && !c.who.Staff {
			continue
		}
		rows = append(rows, m)
	}
	c.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
	if len(rows) > HistoryLimit {
		rows = rows[len(rows)-HistoryLimit:]
	}

	out := make([]models.ChatMessage, len(rows))
	for i, m := range rows {
		out[i] = durableMessage(m)
	}
	return out
}

// PostMessage inserts a row. Delivery, including to this channel, happens
// through the message feed.
func (c *DurableChannel) PostMessage(ctx context.Context, text string) (*models.ChatMessage, error) {
	return c.post(ctx, text, false)
}

// PostInstructorsOnly inserts a staff only row.
func (c *DurableChannel) PostInstructorsOnly(ctx context.Context, text string) (*models.ChatMessage, error) {
	return c.post(ctx, text, true)
}

func (c *DurableChannel) post(ctx context.Context, text string, instructorsOnly bool) (*models.ChatMessage, error) {
	if c.sub.State() != realtime.StateSubscribed {
		return nil, ErrNotSubscribed
	}
	row := &models.HelpRequestMessage{
		ClassID:         c.request.ClassID,
		HelpRequestID:   c.request.ID,
		Author:          c.who.ProfileID,
		Message:         text,
		Requestor:       c.request.CreatedBy,
		InstructorsOnly: instructorsOnly && c.who.Staff,
		CreatedAt:       time.Now().UTC(),
	}
	if err := c.store.Create(ctx, row); err != nil {
		return nil, err
	}
	if c.feed != nil {
		c.feed.Apply(tablecache.ChangeInsert, *row)
	}
	if c.observer != nil {
		c.observer.MessagePosted(KindDurable)
	}
	msg := durableMessage(*row)
	return &msg, nil
}

// Participants returns the de-duplicated profile ids present on the topic.
func (c *DurableChannel) Participants() []string { return c.sub.Participants() }

// Close untracks and leaves the topic.
func (c *DurableChannel) Close() error {
	c.mu.Lock()
	stop := c.stopFeed
	c.stopFeed = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
	return c.sub.Close()
}

func (c *DurableChannel) onChange(ch tablecache.Change[models.HelpRequestMessage]) {
	if ch.Type == tablecache.ChangeResync {
		go c.reload()
		return
	}
	if ch.Row.HelpRequestID != c.request.ID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch.Type == tablecache.ChangeDelete {
		delete(c.messages, ch.Row.ID)
		return
	}
	c.messages[ch.Row.ID] = ch.Row
}

// drain consumes topic events so presence syncs do not pile up.
func (c *DurableChannel) drain() {
	defer close(c.done)
	for range c.sub.Events() {
	}
}

func durableMessage(m models.HelpRequestMessage) models.ChatMessage {
	return models.ChatMessage{
		ID:              strconv.FormatInt(m.ID, 10),
		Message:         m.Message,
		Author:          m.Author,
		InstructorsOnly: m.InstructorsOnly,
		CreatedAt:       m.CreatedAt,
	}
}
