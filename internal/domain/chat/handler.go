package chat

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sympto/sympto/internal/platform/apperr"
	"github.com/sympto/sympto/internal/platform/auth"
	"github.com/sympto/sympto/internal/platform/narrative"
)

// MaxMessageLength caps a chat message in characters.
const MaxMessageLength = 2000

type Handler struct {
	assistant narrative.Assistant
	logger    zerolog.Logger
}

// NewHandler wires the medical assistant. assistant may be nil, in which
// case the endpoint answers 503.
func NewHandler(assistant narrative.Assistant, logger zerolog.Logger) *Handler {
	return &Handler{assistant: assistant, logger: logger}
}

// RegisterRoutes mounts /api/chat.
func (h *Handler) RegisterRoutes(g *echo.Group, optional, limit echo.MiddlewareFunc) {
	g.POST("", h.Ask, optional, limit)
}

type askInput struct {
	Message string `json:"message"`
}

func (h *Handler) Ask(c echo.Context) error {
	var in askInput
	if err := apperr.Bind(c, &in); err != nil {
		return err
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return apperr.Validation("message is required")
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return apperr.Validation("message must be at most %d characters", MaxMessageLength)
	}
	if h.assistant == nil {
		return apperr.Unavailable("AI assistant is not configured")
	}

	reply, err := h.assistant.Answer(c.Request().Context(), msg)
	if err != nil {
		if errors.Is(err, narrative.ErrNotConfigured) {
			return apperr.Unavailable("AI assistant is not configured")
		}
		return apperr.Upstream(0, "failed to get response from AI service", err)
	}

	evt := h.logger.Info().Int("chars", len(reply))
	if p := auth.PrincipalFromContext(c.Request().Context()); p != nil {
		evt = evt.Str("user_id", p.UserID.String())
	}
	evt.Msg("chat answered")

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "reply": reply})
}
