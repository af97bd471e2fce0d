package report

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sympto/sympto/internal/platform/apperr"
	"github.com/sympto/sympto/internal/platform/auth"
	"github.com/sympto/sympto/internal/platform/narrative"
	"github.com/sympto/sympto/pkg/pagination"
)

type Handler struct {
	svc      *Service
	narrator narrative.Generator
	logger   zerolog.Logger
}

// NewHandler wires the report endpoints. narrator may be nil, in which case
// the narrative endpoint answers 503.
func NewHandler(svc *Service, narrator narrative.Generator, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, narrator: narrator, logger: logger}
}

// RegisterRoutes mounts /api/reports. protect guards stored reports;
// optional attributes narrative requests when a token is present.
func (h *Handler) RegisterRoutes(g *echo.Group, protect, optional echo.MiddlewareFunc) {
	g.POST("/save", h.Save, protect)
	g.POST("/narrative", h.Narrative, optional)
	g.GET("", h.List, protect)
	g.GET("/:id", h.Get, protect)
	g.DELETE("/:id", h.Delete, protect)
}

func principal(c echo.Context) (*auth.Principal, error) {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return nil, apperr.Unauthorized("not authorized")
	}
	return p, nil
}

func (h *Handler) Save(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var in SaveInput
	if err := apperr.Bind(c, &in); err != nil {
		return err
	}
	rep, err := h.svc.Save(c.Request().Context(), p.UserID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "report saved successfully",
		"report":  rep.Saved(),
	})
}

func (h *Handler) List(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	reports, err := h.svc.List(c.Request().Context(), p.UserID, pagination.FromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(reports),
		"reports": reports,
	})
}

func (h *Handler) Get(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.Get(c.Request().Context(), p.UserID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "report": rep})
}

func (h *Handler) Delete(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), p.UserID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "report deleted successfully"})
}

type narrativeInput struct {
	Disease     string          `json:"disease"`
	DiseaseName string          `json:"diseaseName"`
	Prediction  string          `json:"prediction"`
	Confidence  json.RawMessage `json:"confidence"`
	FormData    map[string]any  `json:"formData"`
}

// Narrative asks the language model for a patient-facing report on a
// prediction. The result is returned, not stored.
func (h *Handler) Narrative(c echo.Context) error {
	var in narrativeInput
	if err := apperr.Bind(c, &in); err != nil {
		return err
	}
	disease, ok := ParseDisease(in.Disease)
	if !ok {
		return apperr.Validation("invalid disease type %q", in.Disease)
	}
	if strings.TrimSpace(in.Prediction) == "" {
		return apperr.Validation("prediction is required")
	}
	confidence, err := ParseFlexFloat(in.Confidence)
	if err != nil || confidence < 0 || confidence > 100 {
		return apperr.Validation("confidence must be a number between 0 and 100")
	}
	if h.narrator == nil {
		return apperr.Unavailable("AI report generation is not configured")
	}

	text, err := h.narrator.Generate(c.Request().Context(), narrative.Request{
		Disease:     string(disease),
		DiseaseName: strings.TrimSpace(in.DiseaseName),
		Prediction:  strings.TrimSpace(in.Prediction),
		Confidence:  confidence,
		FormData:    in.FormData,
	})
	if err != nil {
		if errors.Is(err, narrative.ErrNotConfigured) {
			return apperr.Unavailable("AI report generation is not configured")
		}
		return apperr.Upstream(0, "failed to generate AI report", err)
	}

	logEvt := h.logger.Info().Str("disease", string(disease)).Int("chars", len(text))
	if p := auth.PrincipalFromContext(c.Request().Context()); p != nil {
		logEvt = logEvt.Str("user_id", p.UserID.String())
	}
	logEvt.Msg("narrative generated")

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "report": text})
}
