package handler

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"stromboard/internal/auth"
	"stromboard/internal/logging"
	"stromboard/internal/model"
	"stromboard/internal/relay"
	"stromboard/internal/store"
)

// SessionHandler 화이트보드 세션 REST 핸들러
type SessionHandler struct {
	sessions store.SessionStore
	dir      *relay.Directory
	log      zerolog.Logger
}

// NewSessionHandler SessionHandler 생성
func NewSessionHandler(sessions store.SessionStore, dir *relay.Directory) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		dir:      dir,
		log:      logging.Component("sessions"),
	}
}

// CreateSessionRequest 세션 생성 요청 (sessionName 우선, name은 구 클라이언트 호환)
type CreateSessionRequest struct {
	SessionName string `json:"sessionName" validate:"max=200"`
	Name        string `json:"name" validate:"max=200"`
}

// UpdateSessionRequest 스냅샷 저장 요청
type UpdateSessionRequest struct {
	DrawingData json.RawMessage `json:"drawingData"`
}

// CreateSession POST /api/sessions
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	name := strings.TrimSpace(req.SessionName)
	if name == "" {
		name = strings.TrimSpace(req.Name)
	}
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session name is required",
		})
	}

	session, err := h.sessions.CreateSession(c.UserContext(), name)
	if err != nil {
		h.log.Error().Err(err).Msg("create session")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error while creating session",
		})
	}

	ev := h.log.Info().Str("session", session.ID).Str("name", session.SessionName)
	if id, ok := auth.IdentityFrom(c); ok {
		ev = ev.Str("user", id.UserID)
	}
	ev.Msg("session created")

	return c.Status(fiber.StatusCreated).JSON(session)
}

// ListSessions GET /api/sessions (최신순)
func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.sessions.ListSessions(c.UserContext())
	if err != nil {
		h.log.Error().Err(err).Msg("list sessions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error while fetching sessions",
		})
	}
	return c.JSON(sessions)
}

// GetSession GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.sessions.GetSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.storeError(c, err, "Server error while fetching session")
	}
	return c.JSON(session)
}

// UpdateSession PUT /api/sessions/:id (drawingData 통째로 교체)
func (h *SessionHandler) UpdateSession(c *fiber.Ctx) error {
	var req UpdateSessionRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	data, err := model.NewDrawingData(req.DrawingData)
	if err != nil {
		return badRequest(c, err)
	}

	id := c.Params("id")
	if err := h.sessions.UpdateDrawingData(c.UserContext(), id, data); err != nil {
		return h.storeError(c, err, "Server error while saving session")
	}

	session, err := h.sessions.GetSession(c.UserContext(), id)
	if err != nil {
		return h.storeError(c, err, "Server error while fetching session")
	}
	return c.JSON(session)
}

// DeleteSession DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	if err := h.sessions.DeleteSession(c.UserContext(), c.Params("id")); err != nil {
		return h.storeError(c, err, "Server error while deleting session")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetParticipants GET /api/sessions/:id/participants (실시간 참여자 목록)
func (h *SessionHandler) GetParticipants(c *fiber.Ctx) error {
	return c.JSON(relay.RosterEntries(h.dir.RosterOf(c.Params("id"))))
}

func (h *SessionHandler) storeError(c *fiber.Ctx, err error, message string) error {
	if errors.Is(err, store.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	h.log.Error().Err(err).Str("session", c.Params("id")).Msg(message)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": message,
	})
}
