package advise

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRecommendation indicates the LLM response could not be
// parsed into a recommendation naming one of the candidates. Callers
// treat it the same as an unavailable advisor.
var ErrMalformedRecommendation = errors.New("malformed recommendation")

// BuildPrompt renders a routing request as a model prompt. All providers
// share this format so recommendations stay comparable across backends.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You assist a workflow engine in choosing the next step.\n")
	fmt.Fprintf(&b, "Current node: %s\n", req.Node)
	fmt.Fprintf(&b, "Execution state: %s\n\n", req.StateSummary)
	b.WriteString("Candidate next steps:\n")
	for _, c := range req.Candidates {
		fmt.Fprintf(&b, "- target=%q score=%.2f", c.Target, c.Score)
		if c.Condition != "" {
			fmt.Fprintf(&b, " condition=%q", c.Condition)
		}
		if len(c.Metadata) > 0 {
			if meta, err := json.Marshal(c.Metadata); err == nil {
				fmt.Fprintf(&b, " metadata=%s", meta)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with a single JSON object and nothing else:\n")
	b.WriteString(`{"target": "<one candidate target>", "confidence": <0.0-1.0>, "reason": "<short>"}`)
	b.WriteString("\n")
	return b.String()
}

// ParseRecommendation extracts a recommendation from raw model output and
// validates it against the candidate set. Models often wrap JSON in prose
// or code fences, so the first JSON object found in the text is used.
func ParseRecommendation(text string, candidates []Candidate) (Recommendation, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Recommendation{}, fmt.Errorf("%w: no JSON object in response", ErrMalformedRecommendation)
	}

	var rec Recommendation
	if err := json.Unmarshal([]byte(text[start:end+1]), &rec); err != nil {
		return Recommendation{}, fmt.Errorf("%w: %v", ErrMalformedRecommendation, err)
	}
	if rec.Target == "" {
		return Recommendation{}, fmt.Errorf("%w: empty target", ErrMalformedRecommendation)
	}
	for _, c := range candidates {
		if c.Target == rec.Target {
			if rec.Confidence < 0 {
				rec.Confidence = 0
			}
			if rec.Confidence > 1 {
				rec.Confidence = 1
			}
			return rec, nil
		}
	}
	return Recommendation{}, fmt.Errorf("%w: target %q matches no candidate", ErrMalformedRecommendation, rec.Target)
}
