// Package google provides a routing advisor backed by Google's Gemini
// models.
package google

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/halcyon-ai/agentgraph/graph/advise"
)

const defaultModel = "gemini-1.5-flash"

// Advisor implements advise.Advisor using the Gemini API.
//
// The genai client owns network resources; call Close when done.
type Advisor struct {
	client *genai.Client
	model  string
}

// New creates a Gemini-backed advisor. An empty model selects a fast
// default suitable for routing advice.
func New(ctx context.Context, apiKey, model string) (*Advisor, error) {
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google advisor: %w", err)
	}
	return &Advisor{client: client, model: model}, nil
}

// Recommend implements advise.Advisor.
func (a *Advisor) Recommend(ctx context.Context, req advise.Request) (advise.Recommendation, error) {
	prompt := advise.BuildPrompt(req)

	model := a.client.GenerativeModel(a.model)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return advise.Recommendation{}, fmt.Errorf("google advisor: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return advise.Recommendation{}, fmt.Errorf("google advisor: %w", advise.ErrMalformedRecommendation)
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return advise.ParseRecommendation(text, req.Candidates)
}

// Close releases the underlying client.
func (a *Advisor) Close() error { return a.client.Close() }
