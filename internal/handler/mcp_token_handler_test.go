package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

type fakeMCPTokenSrv struct {
	req      *models.CreateMCPTokenRequest
	revoked  string
	err      error
	requests []models.HelpRequest
}

func (f *fakeMCPTokenSrv) List(context.Context, string) ([]models.APIToken, error) {
	return []models.APIToken{{ID: "t1", Name: "laptop", Scopes: []string{models.ScopeMCPRead}}}, f.err
}

func (f *fakeMCPTokenSrv) Create(_ context.Context, _ string, req models.CreateMCPTokenRequest) (*models.CreateMCPTokenResponse, error) {
	f.req = &req
	if f.err != nil {
		return nil, f.err
	}
	return &models.CreateMCPTokenResponse{Token: "mcp_abc", Metadata: &models.APIToken{ID: "t2", Name: req.Name}}, nil
}

func (f *fakeMCPTokenSrv) Revoke(_ context.Context, _, id string) error {
	f.revoked = id
	return f.err
}

func (f *fakeMCPTokenSrv) ListRequests(_ context.Context, _ string, classID int64) ([]models.HelpRequest, error) {
	return f.requests, f.err
}

func TestMCPTokenHandlerList(t *testing.T) {
	srv := &fakeMCPTokenSrv{}
	h := NewMCPTokenHandler(srv, srv)

	c, rec := newTestContext(t, http.MethodGet, "/", "", "ta")
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Tokens []models.APIToken `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	require.Len(t, data.Tokens, 1)
	assert.Equal(t, "laptop", data.Tokens[0].Name)
}

func TestMCPTokenHandlerCreate(t *testing.T) {
	srv := &fakeMCPTokenSrv{}
	h := NewMCPTokenHandler(srv, srv)

	c, rec := newTestContext(t, http.MethodPost, "/", `{"name":"claude desktop","scopes":["mcp:read","mcp:write"],"expires_in_days":30}`, "ta")
	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "claude desktop", srv.req.Name)
	assert.Equal(t, []string{"mcp:read", "mcp:write"}, srv.req.Scopes)
	require.NotNil(t, srv.req.ExpiresInDays)
	assert.Equal(t, 30, *srv.req.ExpiresInDays)

	var resp models.CreateMCPTokenResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.Equal(t, "mcp_abc", resp.Token)
}

func TestMCPTokenHandlerErrors(t *testing.T) {
	srv := &fakeMCPTokenSrv{err: appErrors.Clone(appErrors.ErrValidation, "Invalid scopes. Valid scopes: mcp:read, mcp:write")}
	h := NewMCPTokenHandler(srv, srv)

	c, rec := newTestContext(t, http.MethodPost, "/", `{"name":"x","scopes":["admin"]}`, "ta")
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid scopes. Valid scopes: mcp:read, mcp:write", decode(t, rec).Error["message"])

	c, rec = newTestContext(t, http.MethodPost, "/", `{"name":"x"}`, "")
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMCPTokenHandlerRejectsStudents(t *testing.T) {
	srv := &fakeMCPTokenSrv{err: appErrors.Clone(appErrors.ErrForbidden, "MCP tokens require an instructor or grader role")}
	h := NewMCPTokenHandler(srv, srv)

	c, rec := newTestContext(t, http.MethodGet, "/", "", "student")
	h.List(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, rec).Error["code"])

	c, rec = newTestContext(t, http.MethodPost, "/", `{"name":"","expires_in_days":0}`, "student")
	h.Create(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMCPTokenHandlerRevoke(t *testing.T) {
	srv := &fakeMCPTokenSrv{}
	h := NewMCPTokenHandler(srv, srv)

	c, rec := newTestContext(t, http.MethodDelete, "/", "", "ta", "id", "t1")
	h.Revoke(c)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "t1", srv.revoked)
}

func TestMCPTokenHandlerHelpRequests(t *testing.T) {
	srv := &fakeMCPTokenSrv{requests: []models.HelpRequest{{ID: 5, ClassID: 1, Request: "help"}}}
	h := NewMCPTokenHandler(srv, srv)

	c, rec := newTestContext(t, http.MethodGet, "/", "", "ta", "class_id", "1")
	h.HelpRequests(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var requests []models.HelpRequest
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &requests))
	require.Len(t, requests, 1)
	assert.Equal(t, int64(5), requests[0].ID)
}
