package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type socketStub struct{ userID string }

func (s *socketStub) Serve(w http.ResponseWriter, _ *http.Request, userID string) {
	s.userID = userID
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func TestRealtimeHandlerConnect(t *testing.T) {
	gateway := &socketStub{}
	h := NewRealtimeHandler(gateway)

	c, rec := newTestContext(t, http.MethodGet, "/realtime", "", "")
	h.Connect(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, gateway.userID)

	c, _ = newTestContext(t, http.MethodGet, "/realtime", "", "user-1")
	h.Connect(c)
	assert.Equal(t, "user-1", gateway.userID)
}
