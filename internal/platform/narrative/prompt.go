// Package narrative turns a prediction into a patient-facing health report
// written by a large language model.
package narrative

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Request describes the prediction a narrative is written for.
type Request struct {
	Disease     string         `json:"disease"`
	DiseaseName string         `json:"diseaseName,omitempty"`
	Prediction  string         `json:"prediction"`
	Confidence  float64        `json:"confidence"`
	FormData    map[string]any `json:"formData,omitempty"`
}

// positiveLabels are the prediction labels that mean the condition was found.
var positiveLabels = map[string]bool{
	"parasitized": true,
	"depressed":   true,
	"pneumonia":   true,
	"diabetes":    true,
	"cyst":        true,
	"stone":       true,
	"tumor":       true,
}

// IsPositive reports whether prediction names a detected condition.
func IsPositive(prediction string) bool {
	return positiveLabels[strings.ToLower(strings.TrimSpace(prediction))]
}

func (r Request) label() string {
	if s := strings.TrimSpace(r.DiseaseName); s != "" {
		return s
	}
	return r.Disease
}

// conditionName drops the test-type suffix used in display names, so
// "Malaria Detection" reads as "Malaria".
func conditionName(label string) string {
	label = strings.Replace(label, " Detection", "", 1)
	return strings.Replace(label, " Risk Assessment", "", 1)
}

// BuildPrompt renders the five-section prompt. Detected conditions get
// treatment guidance; negative results get prevention advice.
func BuildPrompt(r Request) string {
	label := r.label()
	confidence := strconv.FormatFloat(r.Confidence, 'f', -1, 64)

	patientData := ""
	if len(r.FormData) > 0 {
		if b, err := json.Marshal(r.FormData); err == nil {
			patientData = "Patient Data: " + string(b)
		}
	}

	var b strings.Builder
	if IsPositive(r.Prediction) {
		fmt.Fprintf(&b, "You are a compassionate medical AI assistant. A patient has been diagnosed with %s with %s%% confidence.\n", label, confidence)
		fmt.Fprintf(&b, "Prediction Result: %s\n%s\n\n", r.Prediction, patientData)
		fmt.Fprintf(&b, "Generate a comprehensive, empathetic health report for a patient who HAS BEEN DIAGNOSED with %s:\n\n", label)
		fmt.Fprintf(&b, "**1. Explanation of Your Condition**\nExplain what %s means, how it affects the body, and why early treatment is important. (2-3 sentences)\n\n", r.Prediction)
		fmt.Fprintf(&b, "**2. Personalized Health Tips**\nProvide 5 specific, actionable tips for managing %s:\n", r.Prediction)
		bullets(&b, 5, "[Specific tip %d for treating/managing this condition]")
		b.WriteString("\n**3. Recommended Lifestyle Changes**\nProvide 3 important lifestyle modifications to help recovery:\n")
		bullets(&b, 3, "[Lifestyle change %d specific to this condition]")
		b.WriteString("\n**4. Next Steps for Medical Consultation**\nExplain urgently what medical steps the patient should take immediately, which specialists to see, and what tests might be needed.\n\n")
		b.WriteString("**5. Important Warning Signs to Watch For**\nList 5 critical warning signs that require IMMEDIATE medical attention:\n")
		bullets(&b, 5, "[Emergency warning sign %d]")
		b.WriteString("\nUse an empathetic, supportive tone. This is a POSITIVE diagnosis - the patient needs treatment guidance.")
		return b.String()
	}

	condition := conditionName(label)
	fmt.Fprintf(&b, "You are a supportive medical AI assistant. A patient's test results show NO signs of %s with %s%% confidence.\n", label, confidence)
	fmt.Fprintf(&b, "Prediction Result: %s\n%s\n\n", r.Prediction, patientData)
	fmt.Fprintf(&b, "Generate a reassuring health report for a patient who DOES NOT have %s:\n\n", label)
	fmt.Fprintf(&b, "**1. Understanding Your Results**\nExplain that the test shows no signs of %s, what this means, and why it's good news. (2-3 sentences)\n\n", condition)
	fmt.Fprintf(&b, "**2. Preventive Health Tips**\nProvide 5 tips to PREVENT %s and maintain good health:\n", condition)
	bullets(&b, 5, "[Prevention tip %d]")
	b.WriteString("\n**3. Recommended Lifestyle Habits**\nProvide 3 healthy lifestyle habits to continue staying disease-free:\n")
	bullets(&b, 3, "[Healthy habit %d]")
	b.WriteString("\n**4. Next Steps for Wellness**\nRecommend routine check-ups, screening schedules, and preventive care measures to maintain health.\n\n")
	b.WriteString("**5. Symptoms to Monitor**\nList 5 symptoms that, if they appear in the future, should prompt a medical visit:\n")
	bullets(&b, 5, "[Symptom to watch %d]")
	b.WriteString("\nUse a positive, encouraging tone. This is a NEGATIVE diagnosis - celebrate the good news while promoting prevention.")
	return b.String()
}

func bullets(b *strings.Builder, n int, format string) {
	for i := 1; i <= n; i++ {
		b.WriteString("* ")
		fmt.Fprintf(b, format, i)
		b.WriteByte('\n')
	}
}
