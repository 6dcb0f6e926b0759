package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
	"github.com/pawtograder/office-hours/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

var helpRequestExportHeaders = []string{"ID", "Queue", "Status", "Request", "Created By", "Assignee", "Private", "Created At", "Resolved At", "Resolved By"}

type exportRequestRepository interface {
	ListByClass(ctx context.Context, classID int64) ([]models.HelpRequest, error)
}

type exportQueueRepository interface {
	ListByClass(ctx context.Context, classID int64) ([]models.HelpQueue, error)
}

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered export ready to be sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders a class's help request history for staff.
type ExportService struct {
	requests  exportRequestRepository
	queues    exportQueueRepository
	access    *AccessService
	renderers map[string]renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(requests exportRequestRepository, queues exportQueueRepository, access *AccessService, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		requests: requests,
		queues:   queues,
		access:   access,
		renderers: map[string]renderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// HelpRequestHistory renders every help request of the class in format.
func (s *ExportService) HelpRequestHistory(ctx context.Context, userID string, classID int64, format string) (*ExportFile, error) {
	if format == "" {
		format = ExportFormatCSV
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if _, err := s.access.RequireStaff(ctx, userID, classID); err != nil {
		return nil, err
	}

	dataset, err := s.buildDataset(ctx, classID)
	if err != nil {
		return nil, err
	}
	body, err := r.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("help request history exported", zap.Int64("class_id", classID), zap.String("format", format), zap.Int("rows", len(dataset.Rows)))
	return &ExportFile{
		Filename:    fmt.Sprintf("help_requests_class_%d_%s.%s", classID, s.now().UTC().Format("20060102_150405"), r.Extension()),
		ContentType: r.ContentType(),
		Body:        body,
	}, nil
}

func (s *ExportService) buildDataset(ctx context.Context, classID int64) (export.Dataset, error) {
	queues, err := s.queues.ListByClass(ctx, classID)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load help queues")
	}
	names := make(map[int64]string, len(queues))
	for _, q := range queues {
		names[q.ID] = q.Name
	}

	requests, err := s.requests.ListByClass(ctx, classID)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load help requests")
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Help requests (class %d)", classID),
		Headers: helpRequestExportHeaders,
		Rows:    make([]map[string]string, 0, len(requests)),
	}
	for _, r := range requests {
		queue := names[r.HelpQueueID]
		if queue == "" {
			queue = strconv.FormatInt(r.HelpQueueID, 10)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":          strconv.FormatInt(r.ID, 10),
			"Queue":       queue,
			"Status":      string(r.Status),
			"Request":     r.Request,
			"Created By":  deref(r.CreatedBy),
			"Assignee":    deref(r.Assignee),
			"Private":     strconv.FormatBool(r.IsPrivate),
			"Created At":  r.CreatedAt.UTC().Format(time.RFC3339),
			"Resolved At": formatTime(r.ResolvedAt),
			"Resolved By": deref(r.ResolvedBy),
		})
	}
	return dataset, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
