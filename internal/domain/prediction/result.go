package prediction

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/sympto/sympto/internal/domain/report"
)

// Result is the canonical prediction returned to clients.
type Result struct {
	Prediction    string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	RiskLevel     report.RiskLevel   `json:"riskLevel"`
	Probabilities map[string]float64 `json:"probabilities"`
}

var ErrMalformedResult = errors.New("malformed inference response")

// Normalize converts any shape the inference service has been seen to return
// into a Result. The payload may be wrapped under "data" or flat, use
// risk_level or riskLevel, and carry numbers either as JSON numbers or as
// numeric strings. A missing or unknown risk level is derived from the
// confidence.
func Normalize(body []byte) (*Result, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	fields := top
	if raw, ok := top["data"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err == nil && inner != nil {
			fields = inner
		}
	}

	var res Result
	if err := json.Unmarshal(fields["prediction"], &res.Prediction); err != nil || strings.TrimSpace(res.Prediction) == "" {
		return nil, fmt.Errorf("%w: missing prediction", ErrMalformedResult)
	}
	conf, err := report.ParseFlexFloat(fields["confidence"])
	if err != nil || conf < 0 || conf > 100 {
		return nil, fmt.Errorf("%w: invalid confidence", ErrMalformedResult)
	}
	res.Confidence = conf

	res.RiskLevel = report.DefaultRiskLevel(conf)
	for _, key := range []string{"riskLevel", "risk_level"} {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil {
			if rl, ok := report.ParseRiskLevel(s); ok {
				res.RiskLevel = rl
				break
			}
		}
	}

	res.Probabilities = map[string]float64{}
	if raw, ok := fields["probabilities"]; ok && string(raw) != "null" {
		var probs map[string]report.FlexFloat
		if err := json.Unmarshal(raw, &probs); err != nil {
			return nil, fmt.Errorf("%w: invalid probabilities", ErrMalformedResult)
		}
		for k, v := range probs {
			res.Probabilities[k] = float64(v)
		}
	}
	return &res, nil
}

// maxDetailLen bounds raw downstream text echoed back to clients.
const maxDetailLen = 512

// errorDetail picks the most specific message from a failed downstream
// response: a string "detail", the first "msg" of a validation error list,
// an "error" or "message" field, the raw body, and finally the status text.
func errorDetail(status int, body []byte) string {
	var obj map[string]json.RawMessage
	if json.Unmarshal(body, &obj) == nil {
		if raw, ok := obj["detail"]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
			var list []struct {
				Msg string `json:"msg"`
			}
			if json.Unmarshal(raw, &list) == nil && len(list) > 0 && list[0].Msg != "" {
				return list[0].Msg
			}
		}
		for _, key := range []string{"error", "message"} {
			var s string
			if raw, ok := obj[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return truncate(text, maxDetailLen)
	}
	if s := http.StatusText(status); s != "" {
		return s
	}
	return fmt.Sprintf("inference service returned status %d", status)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
