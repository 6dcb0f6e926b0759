package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawtograder/office-hours/pkg/response"
)

type socketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
}

// RealtimeHandler upgrades authenticated clients to the websocket gateway.
type RealtimeHandler struct {
	gateway socketServer
}

// NewRealtimeHandler constructs the handler.
func NewRealtimeHandler(gateway socketServer) *RealtimeHandler {
	return &RealtimeHandler{gateway: gateway}
}

// Connect godoc
// @Summary Realtime websocket
// @Description Browsers pass the access token as the access_token query parameter.
// @Tags Realtime
// @Param access_token query string false "Access token"
// @Success 101
// @Failure 401 {object} response.Envelope
// @Router /realtime [get]
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.gateway.Serve(c.Writer, c.Request, userID)
}
