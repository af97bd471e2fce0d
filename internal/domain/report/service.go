package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sympto/sympto/internal/platform/apperr"
	"github.com/sympto/sympto/pkg/pagination"
)

const msgNotFound = "report not found"

// SaveInput is the body of a save request. Confidence is kept raw so a
// missing value can be told apart from a malformed one.
type SaveInput struct {
	Disease       string               `json:"disease"`
	DiseaseName   string               `json:"diseaseName"`
	Prediction    string               `json:"prediction"`
	Confidence    json.RawMessage      `json:"confidence"`
	RiskLevel     string               `json:"riskLevel"`
	Probabilities map[string]FlexFloat `json:"probabilities"`
	Diagnosis     string               `json:"diagnosis"`
	GeminiReport  string               `json:"geminiReport"`
	ImageURL      string               `json:"imageUrl"`
	TextInput     string               `json:"textInput"`
	PDFData       string               `json:"pdfData"`
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "reports").Logger()}
}

// validate checks required fields first, then value ranges, and returns the
// report to insert.
func (in SaveInput) validate(userID uuid.UUID) (*Report, error) {
	rawConf := strings.TrimSpace(string(in.Confidence))
	switch {
	case strings.TrimSpace(in.Disease) == "":
		return nil, apperr.Validation("disease type is required")
	case strings.TrimSpace(in.Prediction) == "":
		return nil, apperr.Validation("prediction is required")
	case rawConf == "" || rawConf == "null":
		return nil, apperr.Validation("confidence is required")
	case strings.TrimSpace(in.GeminiReport) == "":
		return nil, apperr.Validation("AI report is required")
	}

	disease, ok := ParseDisease(in.Disease)
	if !ok {
		return nil, apperr.Validation("invalid disease type %q", in.Disease)
	}
	confidence, err := ParseFlexFloat(in.Confidence)
	if err != nil || confidence < 0 || confidence > 100 {
		return nil, apperr.Validation("confidence must be a number between 0 and 100")
	}

	risk := DefaultRiskLevel(confidence)
	if strings.TrimSpace(in.RiskLevel) != "" {
		if risk, ok = ParseRiskLevel(in.RiskLevel); !ok {
			return nil, apperr.Validation("risk level must be one of High, Moderate, Low")
		}
	}

	probs := make(map[string]float64, len(in.Probabilities))
	for k, v := range in.Probabilities {
		probs[k] = float64(v)
	}

	name := strings.TrimSpace(in.DiseaseName)
	if name == "" {
		name = string(disease)
	}

	return &Report{
		UserID:        userID,
		Disease:       disease,
		DiseaseName:   name,
		Prediction:    strings.TrimSpace(in.Prediction),
		Confidence:    confidence,
		RiskLevel:     risk,
		Probabilities: probs,
		Diagnosis:     in.Diagnosis,
		GeminiReport:  in.GeminiReport,
		ImageURL:      optional(in.ImageURL),
		TextInput:     optional(in.TextInput),
		PDFData:       optional(in.PDFData),
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) Save(ctx context.Context, userID uuid.UUID, in SaveInput) (*Report, error) {
	rep, err := in.validate(userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rep); err != nil {
		if errors.Is(err, ErrOwnerMissing) {
			return nil, apperr.Unauthorized("user no longer exists")
		}
		return nil, apperr.Internal("failed to save report", err)
	}
	s.logger.Info().
		Str("report_id", rep.ID.String()).
		Str("user_id", userID.String()).
		Str("disease", string(rep.Disease)).
		Bool("has_pdf", rep.PDFData != nil).
		Msg("report saved")
	return rep, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]Summary, error) {
	out, err := s.repo.ListByUser(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, apperr.Internal("failed to fetch reports", err)
	}
	return out, nil
}

// Get returns the report only when userID owns it. Unknown, foreign and
// malformed ids all yield the same NotFound.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, id string) (*Report, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	rep, err := s.repo.GetForUser(ctx, userID, rid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(msgNotFound)
		}
		return nil, apperr.Internal("failed to fetch report", err)
	}
	return rep, nil
}

func (s *Service) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	rid, err := uuid.Parse(id)
	if err != nil {
		return apperr.NotFound(msgNotFound)
	}
	if err := s.repo.DeleteForUser(ctx, userID, rid); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound(msgNotFound)
		}
		return apperr.Internal("failed to delete report", err)
	}
	s.logger.Info().Str("report_id", rid.String()).Str("user_id", userID.String()).Msg("report deleted")
	return nil
}
