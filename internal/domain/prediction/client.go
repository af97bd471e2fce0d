package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sympto/sympto/internal/domain/report"
	"github.com/sympto/sympto/internal/platform/apperr"
)

const (
	DefaultTimeout = 30 * time.Second
	PingTimeout    = 5 * time.Second

	// maxResponseBytes bounds how much of a downstream response is read.
	maxResponseBytes = 4 << 20
)

// Client talks to the inference service. Calls are never retried.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger.With().Str("component", "inference").Logger(),
	}
}

func predictPath(d report.Disease) string {
	return "/api/predict/" + string(d)
}

// ForwardImage posts the uploaded file as multipart field "image". The file
// is streamed from disk; it is not removed here.
func (c *Client) ForwardImage(ctx context.Context, disease report.Disease, file *UploadedFile) (*Result, error) {
	ctx, cancel := detached(ctx, c.timeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeImagePart(mw, file))
	}()
	// The writer must be finished with the file before the caller cleans up.
	defer func() {
		pr.Close()
		<-done
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath(disease), pr)
	if err != nil {
		return nil, apperr.Internal("failed to build inference request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, disease)
}

func writeImagePart(mw *multipart.Writer, file *UploadedFile) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ImageField, file.FileName))
	h.Set("Content-Type", file.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}

// ForwardJSON posts payload as JSON. It serves free-text and structured form
// predictions alike.
func (c *Client) ForwardJSON(ctx context.Context, disease report.Disease, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Validation("invalid prediction input")
	}

	ctx, cancel := detached(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath(disease), bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal("failed to build inference request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, disease)
}

func (c *Client) do(req *http.Request, disease report.Disease) (*Result, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("disease", string(disease)).Dur("latency", time.Since(start)).Msg("inference request failed")
		return nil, apperr.Upstream(http.StatusInternalServerError, err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Upstream(http.StatusInternalServerError, err.Error(), err)
	}

	c.logger.Debug().
		Str("disease", string(disease)).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("inference response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream(resp.StatusCode, errorDetail(resp.StatusCode, body), nil)
	}

	res, err := Normalize(body)
	if err != nil {
		return nil, apperr.Upstream(0, "invalid response from inference service", err)
	}
	return res, nil
}

// Ping fetches the service root and returns its model availability map.
func (c *Client) Ping(ctx context.Context) (map[string]any, error) {
	ctx, cancel := detached(ctx, PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("inference service returned status %d", resp.StatusCode)
	}

	var root struct {
		Models map[string]any `json:"models"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode inference status: %w", err)
	}
	if root.Models == nil {
		root.Models = map[string]any{}
	}
	return root.Models, nil
}

// detached bounds a downstream call by its own timeout. A client that
// disconnects does not abort a call already dispatched.
func detached(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}
