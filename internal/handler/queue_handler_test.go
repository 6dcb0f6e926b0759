package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/dto"
	"github.com/pawtograder/office-hours/internal/models"
	"github.com/pawtograder/office-hours/internal/queuedata"
	"github.com/pawtograder/office-hours/internal/tablecache"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

type fakeQueueSrv struct {
	view      *queuedata.QueueView
	start     *dto.StartWorkingResponse
	err       error
	lastUser  string
	lastClass int64
	lastQueue int64
}

func (f *fakeQueueSrv) record(userID string, classID, queueID int64) {
	f.lastUser, f.lastClass, f.lastQueue = userID, classID, queueID
}

func (f *fakeQueueSrv) View(_ context.Context, userID string, classID, queueID int64) (*queuedata.QueueView, error) {
	f.record(userID, classID, queueID)
	return f.view, f.err
}

func (f *fakeQueueSrv) StartWorking(_ context.Context, userID string, classID, queueID int64) (*dto.StartWorkingResponse, error) {
	f.record(userID, classID, queueID)
	return f.start, f.err
}

func (f *fakeQueueSrv) StopWorking(_ context.Context, userID string, classID, queueID int64) (*models.HelpQueueAssignment, error) {
	f.record(userID, classID, queueID)
	if f.err != nil {
		return nil, f.err
	}
	return &models.HelpQueueAssignment{ID: 1, HelpQueueID: queueID}, nil
}

func TestQueueHandlerView(t *testing.T) {
	srv := &fakeQueueSrv{view: &queuedata.QueueView{
		HelpQueue:        &models.HelpQueue{ID: 3, Name: "Lab"},
		ConnectionStatus: tablecache.StatusConnected,
	}}
	h := NewQueueHandler(srv)

	c, rec := newTestContext(t, http.MethodGet, "/classes/1/queues/3", "", "user-1", "class_id", "1", "queue_id", "3")
	h.View(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", srv.lastUser)
	assert.Equal(t, int64(1), srv.lastClass)
	assert.Equal(t, int64(3), srv.lastQueue)

	envelope := decode(t, rec)
	assert.Equal(t, "connected", envelope.Meta["connection_status"])
	var view queuedata.QueueView
	require.NoError(t, json.Unmarshal(envelope.Data, &view))
	assert.Equal(t, "Lab", view.HelpQueue.Name)
}

func TestQueueHandlerRejectsBadInput(t *testing.T) {
	h := NewQueueHandler(&fakeQueueSrv{})

	c, rec := newTestContext(t, http.MethodGet, "/", "", "", "class_id", "1", "queue_id", "3")
	h.View(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(t, http.MethodGet, "/", "", "user-1", "class_id", "abc", "queue_id", "3")
	h.View(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid class_id", decode(t, rec).Error["message"])

	c, rec = newTestContext(t, http.MethodGet, "/", "", "user-1", "class_id", "1", "queue_id", "0")
	h.View(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueHandlerStartWorkingStatus(t *testing.T) {
	srv := &fakeQueueSrv{start: &dto.StartWorkingResponse{Assignment: &models.HelpQueueAssignment{ID: 7}, Created: true}}
	h := NewQueueHandler(srv)

	c, rec := newTestContext(t, http.MethodPost, "/", "", "ta", "class_id", "1", "queue_id", "3")
	h.StartWorking(c)
	assert.Equal(t, http.StatusCreated, rec.Code)

	srv.start.Created = false
	c, rec = newTestContext(t, http.MethodPost, "/", "", "ta", "class_id", "1", "queue_id", "3")
	h.StartWorking(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueueHandlerStopWorkingError(t *testing.T) {
	h := NewQueueHandler(&fakeQueueSrv{err: appErrors.Clone(appErrors.ErrNotFound, "no active assignment on this queue")})

	c, rec := newTestContext(t, http.MethodPost, "/", "", "ta", "class_id", "1", "queue_id", "3")
	h.StopWorking(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec).Error["code"])
}
