package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sympto/sympto/internal/platform/apperr"
	"github.com/sympto/sympto/internal/platform/auth"
	"github.com/sympto/sympto/internal/platform/narrative"
)

type stubNarrator struct {
	text string
	err  error
	got  narrative.Request
}

func (s *stubNarrator) Generate(_ context.Context, req narrative.Request) (string, error) {
	s.got = req
	return s.text, s.err
}

func newTestHandler(narrator narrative.Generator) (*Handler, *MemoryRepo, *echo.Echo) {
	svc, repo := newTestService()
	return NewHandler(svc, narrator, zerolog.Nop()), repo, echo.New()
}

func request(e *echo.Echo, method, body string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Save(t *testing.T) {
	h, _, e := newTestHandler(nil)
	p := &auth.Principal{UserID: uuid.New(), Email: "ada@example.com"}
	c, rec := request(e, http.MethodPost,
		`{"disease":"kidney","prediction":"Stone","confidence":"92","geminiReport":"...","pdfData":"JVBERi0x"}`, p)

	if err := h.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp struct {
		Success bool                   `json:"success"`
		Message string                 `json:"message"`
		Report  map[string]interface{} `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Message != "report saved successfully" {
		t.Errorf("unexpected envelope %s", rec.Body.String())
	}
	for _, k := range []string{"id", "disease", "prediction", "confidence", "createdAt"} {
		if _, ok := resp.Report[k]; !ok {
			t.Errorf("summary missing %q", k)
		}
	}
	if len(resp.Report) != 5 {
		t.Errorf("summary must have exactly 5 fields, got %v", resp.Report)
	}
	if resp.Report["confidence"] != 92.0 {
		t.Errorf("expected numeric confidence, got %v", resp.Report["confidence"])
	}
}

func TestHandler_Save_RequiresPrincipal(t *testing.T) {
	h, _, e := newTestHandler(nil)
	c, _ := request(e, http.MethodPost, `{}`, nil)
	if err := h.Save(c); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_Save_MalformedProbabilities(t *testing.T) {
	h, repo, e := newTestHandler(nil)
	p := &auth.Principal{UserID: uuid.New()}
	c, _ := request(e, http.MethodPost,
		`{"disease":"kidney","prediction":"Stone","confidence":92,"geminiReport":"x","probabilities":{"Stone":"many"}}`, p)
	if err := h.Save(c); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.Len() != 0 {
		t.Error("nothing may be stored")
	}
}

func TestHandler_ListOmitsLargeFields(t *testing.T) {
	h, _, e := newTestHandler(nil)
	p := &auth.Principal{UserID: uuid.New()}

	in := validInput()
	in.PDFData = "JVBERi0xLjQK"
	if _, err := h.svc.Save(context.Background(), p.UserID, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c, rec := request(e, http.MethodGet, "", p)
	if err := h.List(c); err != nil {
		t.Fatalf("List: %v", err)
	}
	body := rec.Body.String()
	if strings.Contains(body, "geminiReport") || strings.Contains(body, "pdfData") {
		t.Errorf("list must not include narrative or pdf: %s", body)
	}
	var resp struct {
		Count   int              `json:"count"`
		Reports []map[string]any `json:"reports"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || len(resp.Reports) != 1 || resp.Reports[0]["riskLevel"] != "High" {
		t.Errorf("unexpected list %s", body)
	}
}

func TestHandler_GetAndDelete_ForeignIs404(t *testing.T) {
	h, _, e := newTestHandler(nil)
	owner := &auth.Principal{UserID: uuid.New()}
	intruder := &auth.Principal{UserID: uuid.New()}
	rep, err := h.svc.Save(context.Background(), owner.UserID, validInput())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	for _, fn := range []echo.HandlerFunc{h.Get, h.Delete} {
		c, _ := request(e, http.MethodGet, "", intruder)
		c.SetParamNames("id")
		c.SetParamValues(rep.ID.String())
		if err := fn(c); !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("expected 404, got %v", err)
		}
	}

	c, rec := request(e, http.MethodGet, "", owner)
	c.SetParamNames("id")
	c.SetParamValues(rep.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"geminiReport"`) {
		t.Error("full record must include the narrative")
	}
}

func TestHandler_Narrative(t *testing.T) {
	stub := &stubNarrator{text: "**1. Understanding Your Results**"}
	h, _, e := newTestHandler(stub)
	c, rec := request(e, http.MethodPost,
		`{"disease":"malaria","diseaseName":"Malaria Detection","prediction":"Uninfected","confidence":"97.1","formData":{"age":30}}`, nil)

	if err := h.Narrative(c); err != nil {
		t.Fatalf("Narrative: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Understanding Your Results") {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if stub.got.Confidence != 97.1 || stub.got.DiseaseName != "Malaria Detection" || stub.got.FormData["age"] != 30.0 {
		t.Errorf("unexpected request passed to generator: %+v", stub.got)
	}
}

func TestHandler_Narrative_Failures(t *testing.T) {
	tests := []struct {
		name     string
		narrator narrative.Generator
		body     string
		want     apperr.Kind
	}{
		{"not configured", nil, `{"disease":"kidney","prediction":"Stone","confidence":92}`, apperr.KindUnavailable},
		{"provider failure", &stubNarrator{err: errors.New("quota exceeded")}, `{"disease":"kidney","prediction":"Stone","confidence":92}`, apperr.KindUpstream},
		{"unknown disease", &stubNarrator{}, `{"disease":"flu","prediction":"x","confidence":92}`, apperr.KindValidation},
		{"missing prediction", &stubNarrator{}, `{"disease":"kidney","confidence":92}`, apperr.KindValidation},
		{"bad confidence", &stubNarrator{}, `{"disease":"kidney","prediction":"Stone","confidence":"n/a"}`, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, e := newTestHandler(tt.narrator)
			c, _ := request(e, http.MethodPost, tt.body, nil)
			if err := h.Narrative(c); !apperr.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
