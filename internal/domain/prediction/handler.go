package prediction

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sympto/sympto/internal/domain/report"
	"github.com/sympto/sympto/internal/platform/apperr"
	"github.com/sympto/sympto/internal/platform/auth"
)

// State is a step in the life of one prediction request.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateForwarding State = "FORWARDING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
	StateCleanedUp  State = "CLEANED_UP"
)

// tracker logs each state transition of a request.
type tracker struct {
	logger zerolog.Logger
}

func (t tracker) to(s State) {
	t.logger.Info().Str("state", string(s)).Msg("prediction")
}

// failed logs client faults at info and everything else at warn.
func (t tracker) failed(err error) {
	ev := t.logger.Warn()
	if apperr.Is(err, apperr.KindValidation) || apperr.Is(err, apperr.KindPayloadTooLarge) {
		ev = t.logger.Info()
	}
	ev.Err(err).Str("state", string(StateFailed)).Str("kind", apperr.KindOf(err).String()).Msg("prediction")
}

// Forwarder is the inference client used by the handler.
type Forwarder interface {
	ForwardImage(ctx context.Context, disease report.Disease, file *UploadedFile) (*Result, error)
	ForwardJSON(ctx context.Context, disease report.Disease, payload any) (*Result, error)
}

type Handler struct {
	client   Forwarder
	uploader *Uploader
	logger   zerolog.Logger
}

func NewHandler(client Forwarder, uploader *Uploader, logger zerolog.Logger) *Handler {
	return &Handler{client: client, uploader: uploader, logger: logger}
}

// RegisterRoutes mounts /api/predict. optional attributes requests to a user
// when a valid token is present.
func (h *Handler) RegisterRoutes(g *echo.Group, optional echo.MiddlewareFunc) {
	g.POST("/malaria", h.PredictImage(report.Malaria), optional)
	g.POST("/kidney", h.PredictImage(report.Kidney), optional)
	g.POST("/depression", h.PredictText(report.Depression), optional)
}

type response struct {
	Success bool `json:"success"`
	Result
}

func (h *Handler) track(c echo.Context, disease report.Disease) tracker {
	rid, _ := c.Get("request_id").(string)
	lc := h.logger.With().Str("request_id", rid).Str("disease", string(disease))
	if p := auth.PrincipalFromContext(c.Request().Context()); p != nil {
		lc = lc.Str("user_id", p.UserID.String())
	}
	return tracker{logger: lc.Logger()}
}

// PredictImage receives an image upload and forwards it. The spooled file is
// removed exactly once whatever the outcome.
func (h *Handler) PredictImage(disease report.Disease) echo.HandlerFunc {
	return func(c echo.Context) error {
		t := h.track(c, disease)
		t.to(StateReceived)

		file, err := h.uploader.Receive(c.Request())
		if err != nil {
			t.failed(err)
			return err
		}
		defer func() {
			if err := file.Cleanup(); err != nil {
				t.logger.Error().Err(err).Str("path", file.Path).Msg("remove upload")
			}
			t.to(StateCleanedUp)
		}()

		t.logger.Debug().Str("file", file.FileName).Int64("size", file.Size).Msg("upload stored")
		t.to(StateForwarding)
		res, err := h.client.ForwardImage(c.Request().Context(), disease, file)
		if err != nil {
			t.failed(err)
			return err
		}
		t.to(StateSucceeded)
		return c.JSON(http.StatusOK, response{Success: true, Result: *res})
	}
}

// PredictText forwards a free-text prediction request.
func (h *Handler) PredictText(disease report.Disease) echo.HandlerFunc {
	return func(c echo.Context) error {
		t := h.track(c, disease)
		t.to(StateReceived)

		var in struct {
			Text string `json:"text"`
		}
		if err := apperr.Bind(c, &in); err != nil {
			t.failed(err)
			return err
		}
		if strings.TrimSpace(in.Text) == "" {
			err := apperr.Validation("text input is required")
			t.failed(err)
			return err
		}

		t.logger.Debug().Int("chars", len(in.Text)).Msg("text received")
		t.to(StateForwarding)
		res, err := h.client.ForwardJSON(c.Request().Context(), disease, map[string]string{"text": in.Text})
		if err != nil {
			t.failed(err)
			return err
		}
		t.to(StateSucceeded)
		return c.JSON(http.StatusOK, response{Success: true, Result: *res})
	}
}
