package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ChatCall/internal/adapters/rtc"
	"github.com/dkeye/ChatCall/internal/adapters/signal"
	"github.com/dkeye/ChatCall/internal/app"
	"github.com/dkeye/ChatCall/internal/app/orch"
	"github.com/dkeye/ChatCall/internal/domain"
)

// MessageAPI stores messages and reads conversations.
type MessageAPI interface {
	Send(ctx context.Context, sender, receiver domain.UserID, d domain.MessageDraft) (*domain.Message, error)
	History(ctx context.Context, a, b domain.UserID, limit int) ([]domain.Message, error)
}

type handlers struct {
	coord    *orch.Coordinator
	messages MessageAPI
	ice      []rtc.ICEServer
	maxBody  int64
}

type sendRequest struct {
	domain.MessageDraft
	ClientID string `json:"clientId"`
}

type loginRequest struct {
	UserID string `json:"userId"`
}

func identity(c *gin.Context) (domain.UserID, bool) {
	id := c.GetString(signal.IdentityKey)
	if id == "" {
		fail(c, stdhttp.StatusUnauthorized, ErrCodeUnauthorized, "identity required")
		return "", false
	}
	return domain.UserID(id), true
}

func (h *handlers) online(c *gin.Context) {
	users, err := h.coord.Online(c.Request.Context())
	if err != nil {
		fail(c, stdhttp.StatusServiceUnavailable, ErrCodeUnavailable, "presence unavailable")
		return
	}
	c.JSON(stdhttp.StatusOK, gin.H{"users": users})
}

func (h *handlers) iceServers(c *gin.Context) {
	conf, err := rtc.Configuration(h.ice)
	if err != nil {
		fail(c, stdhttp.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	c.JSON(stdhttp.StatusOK, gin.H{"iceServers": conf.ICEServers})
}

func (h *handlers) whoami(c *gin.Context) {
	id := c.GetString(signal.IdentityKey)
	c.JSON(stdhttp.StatusOK, gin.H{"userId": id, "anonymous": id == ""})
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, stdhttp.StatusBadRequest, ErrCodeBadRequest, "invalid body")
		return
	}
	id, err := domain.ParseUserID(req.UserID)
	if err != nil {
		fail(c, stdhttp.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	s := sessions.Default(c)
	s.Set(sessionUserKey, string(id))
	if err := s.Save(); err != nil {
		fail(c, stdhttp.StatusInternalServerError, ErrCodeInternal, "session save failed")
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", string(id)).Msg("session opened")
	c.JSON(stdhttp.StatusOK, gin.H{"userId": id})
}

func (h *handlers) logout(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := s.Save(); err != nil {
		fail(c, stdhttp.StatusInternalServerError, ErrCodeInternal, "session save failed")
		return
	}
	c.Status(stdhttp.StatusNoContent)
}

func (h *handlers) sendMessage(c *gin.Context) {
	me, ok := identity(c)
	if !ok {
		return
	}
	receiver, err := domain.ParseUserID(c.Param("id"))
	if err != nil {
		fail(c, stdhttp.StatusBadRequest, ErrCodeBadRequest, "invalid receiver")
		return
	}
	if h.maxBody > 0 {
		c.Request.Body = stdhttp.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, stdhttp.StatusBadRequest, ErrCodeBadRequest, "invalid body")
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), me, receiver, req.MessageDraft)
	if err != nil {
		status, code := classify(err)
		fail(c, status, code, err.Error())
		return
	}
	h.coord.DeliverMessage(msg, req.ClientID)
	c.JSON(stdhttp.StatusCreated, msg)
}

func (h *handlers) history(c *gin.Context) {
	me, ok := identity(c)
	if !ok {
		return
	}
	peer, err := domain.ParseUserID(c.Param("id"))
	if err != nil {
		fail(c, stdhttp.StatusBadRequest, ErrCodeBadRequest, "invalid peer")
		return
	}
	limit := app.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fail(c, stdhttp.StatusBadRequest, ErrCodeBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	msgs, err := h.messages.History(c.Request.Context(), me, peer, limit)
	if err != nil {
		status, code := classify(err)
		fail(c, status, code, "history unavailable")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(stdhttp.StatusOK, msgs)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMissingReceiver),
		errors.Is(err, domain.ErrInvalidIdentity),
		errors.Is(err, domain.ErrInvalidMedia):
		return stdhttp.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, app.ErrUpstream):
		return stdhttp.StatusBadGateway, ErrCodeUpstream
	default:
		return stdhttp.StatusInternalServerError, ErrCodeInternal
	}
}
