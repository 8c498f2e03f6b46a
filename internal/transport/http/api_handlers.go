package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
)

// APIHandlers provides the diagnostics REST endpoints.
type APIHandlers struct {
	coord *core.Coordinator
	log   *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(coord *core.Coordinator, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		coord: coord,
		log:   logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SocketResponse is one persisted socket binding.
type SocketResponse struct {
	ID        string `json:"id"`
	Socket    string `json:"socket"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SocketsPageResponse is a page of socket bindings.
type SocketsPageResponse struct {
	Data         []SocketResponse `json:"data"`
	CurrPage     int              `json:"curr_page"`
	NextPage     *int             `json:"next_page"`
	PrevPage     *int             `json:"prev_page"`
	TotalPages   int              `json:"total_pages"`
	TotalRecords int              `json:"total_records"`
}

// CheckUsernameRequest represents the check-username request body.
type CheckUsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

// CheckUsernameResponse reports whether an owned username has been bound.
type CheckUsernameResponse struct {
	Exists            bool   `json:"exists"`
	Username          string `json:"username"`
	GeneratedUsername string `json:"generated_username,omitempty"`
}

// OnlineResponse lists the display names of live connections.
type OnlineResponse struct {
	Count int      `json:"count"`
	Names []string `json:"names"`
}

// BroadcastRequest is a server message pushed over HTTP.
type BroadcastRequest struct {
	Room    string `json:"room"`
	Sender  string `json:"sender"`
	Message string `json:"message" binding:"required"`
}

// BroadcastResponse echoes the broadcast message and its reach.
type BroadcastResponse struct {
	proto.EventResponseData
	Delivered int  `json:"delivered"`
	Persisted bool `json:"persisted"`
}

// queryInt reads an optional positive integer query parameter.
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// SocketsList handles paginated socket listing.
// GET /api/sockets-list?page=&limit=
func (h *APIHandlers) SocketsList(c *gin.Context) {
	page, okPage := queryInt(c, "page")
	limit, okLimit := queryInt(c, "limit")
	if !okPage || !okLimit {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "page and limit must be non-negative integers"})
		return
	}

	p, err := h.coord.ListSockets(c.Request.Context(), limit, page)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list sockets")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable"})
		return
	}

	data := make([]SocketResponse, 0, len(p.Data))
	for _, s := range p.Data {
		data = append(data, SocketResponse{
			ID:        s.ID,
			Socket:    s.SocketID,
			Username:  s.Username,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
			UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, SocketsPageResponse{
		Data:         data,
		CurrPage:     p.CurrPage,
		NextPage:     p.NextPage,
		PrevPage:     p.PrevPage,
		TotalPages:   p.TotalPages,
		TotalRecords: p.TotalRecords,
	})
}

// CheckUsername reports whether an owned username exists.
// POST /api/check-username
func (h *APIHandlers) CheckUsername(c *gin.Context) {
	var req CheckUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		h.log.Debug().Err(err).Msg("invalid check-username request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	resp := CheckUsernameResponse{Username: req.Username}
	if ident, ok := h.coord.LookupIdentity(c.Request.Context(), req.Username); ok {
		resp.Exists = true
		resp.Username = ident.OwnedUsername
		resp.GeneratedUsername = ident.CurrentName
	}
	c.JSON(http.StatusOK, resp)
}

// InPrivate reads the private-window flag of an owned username.
// GET /api/in-private?username=
func (h *APIHandlers) InPrivate(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username is required"})
		return
	}

	ident, ok := h.coord.LookupIdentity(c.Request.Context(), username)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}
	c.JSON(http.StatusOK, proto.EventInPrivateData{Username: ident.OwnedUsername, InPrivate: ident.InPrivate})
}

// Online lists the display names of live connections.
// GET /api/online
func (h *APIHandlers) Online(c *gin.Context) {
	names := h.coord.OnlineNames()
	c.JSON(http.StatusOK, OnlineResponse{Count: len(names), Names: names})
}

// Messages returns recent messages for a room, or across rooms without one.
// GET /api/messages?room=
func (h *APIHandlers) Messages(c *gin.Context) {
	room := c.Query("room")
	history := h.coord.History(c.Request.Context(), room)

	messages := make([]proto.EventResponseData, 0, len(history))
	for _, msg := range history {
		messages = append(messages, responseFromMessage(msg))
	}
	c.JSON(http.StatusOK, proto.EventMessagesData{Room: room, Messages: messages})
}

// Broadcast pushes a message to a room, or to every connection without one.
// POST /api/broadcast
func (h *APIHandlers) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid broadcast request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, delivered, err := h.coord.Broadcast(c.Request.Context(), req.Room, req.Sender, req.Message)
	switch {
	case errors.Is(err, core.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case err != nil && !errors.Is(err, core.ErrStoreUnavailable):
		h.log.Error().Err(err).Msg("broadcast failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "broadcast failed"})
		return
	}

	c.JSON(http.StatusOK, BroadcastResponse{
		EventResponseData: responseFromMessage(msg),
		Delivered:         delivered,
		Persisted:         msg.Room != "" && err == nil,
	})
}
