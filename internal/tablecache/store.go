package tablecache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pawtograder/office-hours/internal/models"
)

// ConnectionStatus describes the health of the change feed.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Table names carried in change payloads.
const (
	TableHelpQueues           = "help_queues"
	TableHelpRequests         = "help_requests"
	TableHelpRequestStudents  = "help_request_students"
	TableHelpQueueAssignments = "help_queue_assignments"
	TableHelpRequestMessages  = "help_request_messages"
)

// Store groups the mirrored tables with the feed status.
type Store struct {
	Queues      *Table[models.HelpQueue]
	Requests    *Table[models.HelpRequest]
	Students    *Table[models.HelpRequestStudent]
	Assignments *Table[models.HelpQueueAssignment]
	Messages    *Table[models.HelpRequestMessage]

	mu     sync.RWMutex
	status ConnectionStatus
}

// NewStore returns an empty store in the connecting state.
func NewStore() *Store {
	return &Store{
		Queues:      NewTable[models.HelpQueue](TableHelpQueues),
		Requests:    NewTable[models.HelpRequest](TableHelpRequests),
		Students:    NewTable[models.HelpRequestStudent](TableHelpRequestStudents),
		Assignments: NewTable[models.HelpQueueAssignment](TableHelpQueueAssignments),
		Messages:    NewStream[models.HelpRequestMessage](TableHelpRequestMessages),
		status:      StatusConnecting,
	}
}

// Status returns the current feed status.
func (s *Store) Status() ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus records the feed status.
func (s *Store) SetStatus(status ConnectionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of the queue tables.
type Snapshot struct {
	Queues      []models.HelpQueue
	Requests    []models.HelpRequest
	Students    []models.HelpRequestStudent
	Assignments []models.HelpQueueAssignment

	QueuesReady   bool
	RequestsReady bool
	StudentsReady bool
	Status        ConnectionStatus
}

// Snapshot copies the tables relevant to classID. Each table is copied
// independently so the result is not transactionally consistent.
func (s *Store) Snapshot(classID int64) Snapshot {
	return Snapshot{
		Queues:        s.Queues.Filter(func(q models.HelpQueue) bool { return q.ClassID == classID }),
		Requests:      s.Requests.Filter(func(r models.HelpRequest) bool { return r.ClassID == classID }),
		Students:      s.Students.Filter(func(st models.HelpRequestStudent) bool { return st.ClassID == classID }),
		Assignments:   s.Assignments.Filter(func(a models.HelpQueueAssignment) bool { return a.ClassID == classID }),
		QueuesReady:   s.Queues.Ready(),
		RequestsReady: s.Requests.Ready(),
		StudentsReady: s.Students.Ready(),
		Status:        s.Status(),
	}
}

// Payload is a table change. The notify_table_change trigger only sends
// table, type and id (plus help_request_id on deletes); Record is filled in
// by the listener before Apply.
type Payload struct {
	Table         string          `json:"table"`
	Type          ChangeType      `json:"type"`
	ID            int64           `json:"id"`
	HelpRequestID int64           `json:"help_request_id"`
	Record        json.RawMessage `json:"record"`
	OldRecord     json.RawMessage `json:"old_record"`
}

// DecodePayload parses a notification body.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode change payload: %w", err)
	}
	return p, nil
}

// Mirrors reports whether table is kept in the store.
func Mirrors(table string) bool {
	switch table {
	case TableHelpQueues, TableHelpRequests, TableHelpRequestStudents, TableHelpQueueAssignments, TableHelpRequestMessages:
		return true
	}
	return false
}

// ApplyPayload decodes a notification and applies it to the matching table.
func (s *Store) ApplyPayload(raw []byte) error {
	p, err := DecodePayload(raw)
	if err != nil {
		return err
	}
	return s.Apply(p)
}

// Apply folds a decoded change into the matching table. Unknown tables are
// ignored. A delete without a record is applied by id.
func (s *Store) Apply(p Payload) error {
	if p.Type == ChangeDelete && isEmpty(p.OldRecord) && isEmpty(p.Record) && p.ID != 0 {
		p.OldRecord = json.RawMessage(fmt.Sprintf(`{"id":%d,"help_request_id":%d}`, p.ID, p.HelpRequestID))
	}

	switch p.Table {
	case TableHelpQueues:
		return applyTo(s.Queues, p)
	case TableHelpRequests:
		return applyTo(s.Requests, p)
	case TableHelpRequestStudents:
		return applyTo(s.Students, p)
	case TableHelpQueueAssignments:
		return applyTo(s.Assignments, p)
	case TableHelpRequestMessages:
		return applyTo(s.Messages, p)
	default:
		return nil
	}
}

func isEmpty(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func applyTo[T Row](t *Table[T], p Payload) error {
	body := p.Record
	switch p.Type {
	case ChangeInsert, ChangeUpdate:
	case ChangeDelete:
		body = p.OldRecord
	default:
		return fmt.Errorf("unknown change type %q on %s", p.Type, p.Table)
	}
	if isEmpty(body) {
		return fmt.Errorf("%s %s change without record", p.Table, p.Type)
	}

	var row T
	if err := json.Unmarshal(body, &row); err != nil {
		return fmt.Errorf("decode %s record: %w", p.Table, err)
	}
	t.Apply(p.Type, row)
	return nil
}
