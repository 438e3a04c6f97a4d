package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch *orch.Orchestrator
}

type renameRequest struct {
	Username string `json:"username"`
}

type roomRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *handlers) getMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c), "identity": c.GetString(identityKey)})
}

// putMe renames a guest; issued identities are owned by their issuer.
func (h *handlers) putMe(c *gin.Context) {
	if c.GetString(identityKey) != identityGuest {
		c.JSON(http.StatusForbidden, gin.H{"error": "identity is managed externally"})
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	user := *currentUser(c)
	if err := user.SetUsername(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionUsername, user.Username)
	if err := s.Save(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms, err := h.orch.ListRooms(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) createRoom(c *gin.Context) {
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	desc := ""
	if req.Description != nil {
		desc = *req.Description
	}
	room, err := h.orch.CreateRoom(c.Request.Context(), *req.Name, desc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

func (h *handlers) getRoom(c *gin.Context) {
	room, err := h.orch.GetRoom(currentUser(c), domain.RoomID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// updateRoom edits metadata; absent fields keep their value.
func (h *handlers) updateRoom(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	cur, err := h.orch.GetRoom(currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	name, desc := string(cur.Name), cur.Description
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		desc = *req.Description
	}
	room, err := h.orch.UpdateRoom(c.Request.Context(), currentUser(c), id, name, desc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (h *handlers) listMembers(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	if _, err := h.orch.GetRoom(currentUser(c), id); err != nil {
		writeError(c, err)
		return
	}
	members, err := h.orch.ListMembers(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *handlers) history(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	id := domain.RoomID(c.Param("id"))
	msgs, err := h.orch.History(c.Request.Context(), currentUser(c), id, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]core.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, core.NewMessageDTO(m))
	}
	c.JSON(http.StatusOK, gin.H{"room": id, "messages": out})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
