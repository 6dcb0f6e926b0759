package tablecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
)

// ErrRecordNotFound is returned by Loader.LoadRecord when the row is gone.
var ErrRecordNotFound = errors.New("record not found")

// Loader fetches full table snapshots for (re)synchronisation and single
// rows named by change notifications.
type Loader interface {
	ListHelpQueues(ctx context.Context) ([]models.HelpQueue, error)
	ListHelpRequests(ctx context.Context) ([]models.HelpRequest, error)
	ListHelpRequestStudents(ctx context.Context) ([]models.HelpRequestStudent, error)
	ListActiveAssignments(ctx context.Context) ([]models.HelpQueueAssignment, error)
	LoadRecord(ctx context.Context, table string, id int64) (json.RawMessage, error)
}

// ListenerConfig configures the change feed.
type ListenerConfig struct {
	DSN                  string
	Channel              string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	SyncRetryInterval    time.Duration
	Logger               *zap.Logger
}

// Listener keeps a Store current using LISTEN/NOTIFY. Every (re)connect
// triggers a full resync because notifications sent while disconnected are lost.
type Listener struct {
	store  *Store
	loader Loader
	cfg    ListenerConfig
	logger *zap.Logger

	resync chan struct{}
}

// NewListener constructs a listener.
func NewListener(store *Store, loader Loader, cfg ListenerConfig) *Listener {
	if cfg.Channel == "" {
		cfg.Channel = "pawtograder_table_changes"
	}
	if cfg.MinReconnectInterval <= 0 {
		cfg.MinReconnectInterval = time.Second
	}
	if cfg.MaxReconnectInterval <= 0 {
		cfg.MaxReconnectInterval = 30 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 90 * time.Second
	}
	if cfg.SyncRetryInterval <= 0 {
		cfg.SyncRetryInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Listener{store: store, loader: loader, cfg: cfg, logger: cfg.Logger, resync: make(chan struct{}, 1)}
}

// Run listens until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.store.SetStatus(StatusConnecting)
	pl := pq.NewListener(l.cfg.DSN, l.cfg.MinReconnectInterval, l.cfg.MaxReconnectInterval, l.onEvent)
	defer func() {
		_ = pl.Close()
		l.store.SetStatus(StatusDisconnected)
	}()

	if err := pl.Listen(l.cfg.Channel); err != nil {
		return fmt.Errorf("listen %s: %w", l.cfg.Channel, err)
	}
	l.syncOrRetry(ctx)

	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.resync:
			l.syncOrRetry(ctx)
		case n := <-pl.Notify:
			if n == nil {
				// pq sends nil after a reconnect; the event callback has queued a resync.
				continue
			}
			if err := l.Handle(ctx, []byte(n.Extra)); err != nil {
				l.logger.Warn("apply table change failed", zap.String("channel", n.Channel), zap.Error(err))
			}
		case <-ticker.C:
			if err := pl.Ping(); err != nil {
				l.logger.Warn("listener ping failed", zap.Error(err))
			}
		}
	}
}

// Handle applies one notification, fetching the changed row for inserts and
// updates. A row deleted before it could be read is skipped; its DELETE
// notification follows.
func (l *Listener) Handle(ctx context.Context, raw []byte) error {
	p, err := DecodePayload(raw)
	if err != nil {
		return err
	}
	if !Mirrors(p.Table) {
		return nil
	}
	if p.Type != ChangeDelete && isEmpty(p.Record) {
		record, err := l.loader.LoadRecord(ctx, p.Table, p.ID)
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load %s %d: %w", p.Table, p.ID, err)
		}
		p.Record = record
	}
	return l.store.Apply(p)
}

// syncOrRetry runs Sync and schedules another attempt when it fails.
func (l *Listener) syncOrRetry(ctx context.Context) {
	if err := l.Sync(ctx); err != nil {
		l.logger.Warn("table sync failed, retrying", zap.Duration("retry_in", l.cfg.SyncRetryInterval), zap.Error(err))
		time.AfterFunc(l.cfg.SyncRetryInterval, l.requestResync)
	}
}

// Sync reloads every retained table from the database.
func (l *Listener) Sync(ctx context.Context) error {
	queues, err := l.loader.ListHelpQueues(ctx)
	if err != nil {
		return fmt.Errorf("load help queues: %w", err)
	}
	requests, err := l.loader.ListHelpRequests(ctx)
	if err != nil {
		return fmt.Errorf("load help requests: %w", err)
	}
	students, err := l.loader.ListHelpRequestStudents(ctx)
	if err != nil {
		return fmt.Errorf("load help request students: %w", err)
	}
	assignments, err := l.loader.ListActiveAssignments(ctx)
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}

	l.store.Queues.Load(queues)
	l.store.Requests.Load(requests)
	l.store.Students.Load(students)
	l.store.Assignments.Load(assignments)
	l.store.Messages.Load(nil)
	l.logger.Info("table cache synchronised",
		zap.Int("help_queues", len(queues)),
		zap.Int("help_requests", len(requests)),
		zap.Int("help_request_students", len(students)),
		zap.Int("help_queue_assignments", len(assignments)),
	)
	return nil
}

func (l *Listener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		l.store.SetStatus(StatusConnected)
	case pq.ListenerEventReconnected:
		l.store.SetStatus(StatusConnected)
		l.requestResync()
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		l.store.SetStatus(StatusDisconnected)
		if err != nil {
			l.logger.Warn("table change feed disconnected", zap.Error(err))
		}
	}
}

func (l *Listener) requestResync() {
	select {
	case l.resync <- struct{}{}:
	default:
	}
}
