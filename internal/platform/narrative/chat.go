package narrative

import (
	"context"
	"strings"
	"time"
)

// NonMedicalReply is returned for messages outside the medical domain.
const NonMedicalReply = "I'm specifically designed for medical and health-related assistance. " +
	"Please ask about diseases, symptoms, medical scans (CT, MRI, X-ray), treatments, or health conditions."

// MedicalSystemPrompt restricts the assistant to health topics.
const MedicalSystemPrompt = `You are a medical information assistant for a disease screening application.

Only answer questions about:
- diseases, disorders and their symptoms
- medical scans and tests (CT, MRI, X-ray, ultrasound, blood work)
- treatments, medications and recovery
- prevention, nutrition and healthy habits
- human anatomy and physiology

Keep answers clear and factual, and recommend consulting a qualified doctor for diagnosis or treatment decisions.
Never provide information on unrelated topics. If a question is not medical, reply exactly with:
"` + NonMedicalReply + `"`

const classifierPrompt = `Classify the following user message. Reply with exactly one word:
MEDICAL if it asks about health, diseases, symptoms, medical scans, treatments or anatomy,
NON_MEDICAL otherwise.

Message: `

// Assistant answers free-form health questions.
type Assistant interface {
	Answer(ctx context.Context, message string) (string, error)
}

// IsMedicalLabel reports whether a classifier reply marks the message as
// medical.
func IsMedicalLabel(label string) bool {
	l := strings.ToUpper(label)
	return strings.Contains(l, "MEDICAL") && !strings.Contains(l, "NON_MEDICAL")
}

// Answer classifies message first and only sends medical questions to the
// model. A failed classification lets the message through; the system
// instruction still holds the model to medical topics.
func (g *Gemini) Answer(ctx context.Context, message string) (string, error) {
	start := time.Now()
	label, err := g.run(ctx, call{temperature: 0, prompt: classifierPrompt + message})
	if err != nil {
		g.logger.Warn().Err(err).Msg("chat classification failed")
	} else if !IsMedicalLabel(label) {
		g.logger.Debug().Str("label", label).Msg("chat message refused")
		return NonMedicalReply, nil
	}

	reply, err := g.run(ctx, call{system: MedicalSystemPrompt, temperature: 0.7, prompt: message})
	if err != nil {
		return "", err
	}
	g.logger.Debug().Dur("latency", time.Since(start)).Int("chars", len(reply)).Msg("chat answered")
	return reply, nil
}
