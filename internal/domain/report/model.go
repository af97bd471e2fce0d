package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Disease is one of the prediction categories served by the inference
// service.
type Disease string

const (
	Malaria    Disease = "malaria"
	Kidney     Disease = "kidney"
	Depression Disease = "depression"
)

var diseases = map[Disease]bool{Malaria: true, Kidney: true, Depression: true}

// ParseDisease accepts a disease name case-insensitively.
func ParseDisease(s string) (Disease, bool) {
	d := Disease(strings.ToLower(strings.TrimSpace(s)))
	return d, diseases[d]
}

type RiskLevel string

const (
	RiskHigh     RiskLevel = "High"
	RiskModerate RiskLevel = "Moderate"
	RiskLow      RiskLevel = "Low"
)

// ParseRiskLevel accepts High, Moderate or Low in any letter case and returns
// the canonical spelling.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return RiskHigh, true
	case "moderate":
		return RiskModerate, true
	case "low":
		return RiskLow, true
	}
	return "", false
}

// DefaultRiskLevel derives a risk level from a confidence percentage:
// above 80 is High, above 50 is Moderate, anything else Low.
func DefaultRiskLevel(confidence float64) RiskLevel {
	switch {
	case confidence > 80:
		return RiskHigh
	case confidence > 50:
		return RiskModerate
	default:
		return RiskLow
	}
}

// FlexFloat decodes from a JSON number or a numeric string. The inference
// service and the browser disagree on which one they send.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	v, err := ParseFlexFloat(b)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// ParseFlexFloat parses a raw JSON value as a finite number. Strings are
// trimmed before parsing.
func ParseFlexFloat(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("missing number")
	}

	var v float64
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		v = n
	} else if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return v, nil
}

// Report is a saved diagnostic record.
type Report struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	UserID        uuid.UUID          `db:"user_id" json:"userId"`
	Disease       Disease            `db:"disease" json:"disease"`
	DiseaseName   string             `db:"disease_name" json:"diseaseName"`
	Prediction    string             `db:"prediction" json:"prediction"`
	Confidence    float64            `db:"confidence" json:"confidence"`
	RiskLevel     RiskLevel          `db:"risk_level" json:"riskLevel"`
	Probabilities map[string]float64 `db:"probabilities" json:"probabilities"`
	Diagnosis     string             `db:"diagnosis" json:"diagnosis"`
	GeminiReport  string             `db:"gemini_report" json:"geminiReport"`
	ImageURL      *string            `db:"image_url" json:"imageUrl"`
	TextInput     *string            `db:"text_input" json:"textInput"`
	PDFData       *string            `db:"pdf_data" json:"pdfData"`
	CreatedAt     time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updatedAt"`
}

// Summary is the list view of a report. It leaves out the narrative and the
// PDF payload.
type Summary struct {
	ID            uuid.UUID          `json:"id"`
	UserID        uuid.UUID          `json:"userId"`
	Disease       Disease            `json:"disease"`
	DiseaseName   string             `json:"diseaseName"`
	Prediction    string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	RiskLevel     RiskLevel          `json:"riskLevel"`
	Probabilities map[string]float64 `json:"probabilities"`
	Diagnosis     string             `json:"diagnosis"`
	ImageURL      *string            `json:"imageUrl"`
	TextInput     *string            `json:"textInput"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func (r *Report) Summary() Summary {
	return Summary{
		ID:            r.ID,
		UserID:        r.UserID,
		Disease:       r.Disease,
		DiseaseName:   r.DiseaseName,
		Prediction:    r.Prediction,
		Confidence:    r.Confidence,
		RiskLevel:     r.RiskLevel,
		Probabilities: r.Probabilities,
		Diagnosis:     r.Diagnosis,
		ImageURL:      r.ImageURL,
		TextInput:     r.TextInput,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Saved is the acknowledgement returned after a report is created.
type Saved struct {
	ID         uuid.UUID `json:"id"`
	Disease    Disease   `json:"disease"`
	Prediction string    `json:"prediction"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (r *Report) Saved() Saved {
	return Saved{ID: r.ID, Disease: r.Disease, Prediction: r.Prediction, Confidence: r.Confidence, CreatedAt: r.CreatedAt}
}
