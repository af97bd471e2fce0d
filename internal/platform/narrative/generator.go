package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

var (
	// ErrNotConfigured is returned when no provider API key is set.
	ErrNotConfigured = errors.New("narrative generation is not configured")
	ErrEmptyResponse = errors.New("narrative provider returned no text")
)

const DefaultTimeout = 30 * time.Second

// Generator writes a narrative for a prediction.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Gemini generates narratives and chat replies with Google's Gemini models.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  zerolog.Logger

	// complete runs one model call; NewGemini points it at the live client.
	complete func(ctx context.Context, c call) (string, error)
}

// call is a single prompt sent to the model.
type call struct {
	system      string
	temperature float32
	prompt      string
}

// NewGemini creates a client for model. An empty apiKey yields
// ErrNotConfigured.
func NewGemini(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	g := &Gemini{
		client:  cl,
		model:   strings.TrimSpace(model),
		timeout: DefaultTimeout,
		logger:  logger.With().Str("component", "narrative").Str("model", model).Logger(),
	}
	g.complete = g.generateContent
	return g, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Generate sends the narrative prompt once.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	txt, err := g.run(ctx, call{temperature: 0.7, prompt: BuildPrompt(req)})
	if err != nil {
		return "", err
	}
	g.logger.Debug().Dur("latency", time.Since(start)).Int("chars", len(txt)).Msg("narrative generated")
	return txt, nil
}

// run is one model call detached from the caller's cancellation and bounded
// by its own timeout. Blank output is ErrEmptyResponse.
func (g *Gemini) run(ctx context.Context, c call) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	start := time.Now()
	txt, err := g.complete(ctx, c)
	if err != nil {
		g.logger.Warn().Err(err).Dur("latency", time.Since(start)).Msg("generate failed")
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return "", ErrEmptyResponse
	}
	return txt, nil
}

func (g *Gemini) generateContent(ctx context.Context, c call) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(c.temperature),
	}
	if c.system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(c.system)}}
	}
	resp, err := m.GenerateContent(ctx, genai.Text(c.prompt))
	if err != nil {
		return "", err
	}
	return firstText(resp), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
