package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const identityKey = "identity"

type handlers struct {
	orch       *orch.Orchestrator
	iceServers []config.ICEServer
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func roomParam(c *gin.Context) (domain.RoomID, bool) {
	id := strings.ToUpper(strings.TrimSpace(c.Param("roomID")))
	if !domain.ValidRoomID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidRoomID.Error()})
		return "", false
	}
	return domain.RoomID(id), true
}

func (h *handlers) unavailable(c *gin.Context, err error) {
	log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("orchestrator unavailable")
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
}

func (h *handlers) roomExists(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	exists, full, err := h.orch.Exists(c.Request.Context(), id)
	if err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": id, "exists": exists, "full": full})
}

// roomExistsLegacy keeps the {roomExists, full} shape older clients poll.
func (h *handlers) roomExistsLegacy(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	exists, full, err := h.orch.Exists(c.Request.Context(), id)
	if err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomExists": exists, "full": full})
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms, err := h.orch.ListRooms(c.Request.Context())
	if err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) roomParticipants(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	ps, err := h.orch.Participants(c.Request.Context(), id)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		h.unavailable(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"roomId": id, "participants": ps})
	}
}

func (h *handlers) allParticipants(c *gin.Context) {
	all, err := h.orch.AllParticipants(c.Request.Context())
	if err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

func (h *handlers) listICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.iceServers})
}

func (h *handlers) getIdentity(c *gin.Context) {
	session := sessions.Default(c)
	identity, _ := session.Get(identityKey).(string)
	c.JSON(http.StatusOK, gin.H{"identity": identity})
}

type identityBody struct {
	Identity string `json:"identity" binding:"required,max=64"`
}

func (h *handlers) putIdentity(c *gin.Context) {
	var body identityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	identity, err := domain.NormalizeIdentity(body.Identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session := sessions.Default(c)
	session.Set(identityKey, identity)
	if err := session.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("identity remembered")
	c.JSON(http.StatusOK, gin.H{"identity": identity})
}
