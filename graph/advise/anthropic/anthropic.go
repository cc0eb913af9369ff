// Package anthropic provides a routing advisor backed by Anthropic's
// Claude API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/halcyon-ai/agentgraph/graph/advise"
)

const defaultModel = "claude-3-5-haiku-20241022"

// Advisor implements advise.Advisor using Claude. Routing advice is a
// small, latency-sensitive call, so the default model is the fastest
// tier; capability matters less than the advisor timeout.
//
// Advisor is safe for concurrent use.
type Advisor struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// New creates a Claude-backed advisor. An empty model selects a fast
// default suitable for routing advice.
func New(apiKey, model string) *Advisor {
	if model == "" {
		model = defaultModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Advisor{client: &client, model: model, maxTokens: 256}
}

// Recommend implements advise.Advisor.
func (a *Advisor) Recommend(ctx context.Context, req advise.Request) (advise.Recommendation, error) {
	prompt := advise.BuildPrompt(req)

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return advise.Recommendation{}, fmt.Errorf("anthropic advisor: %w", err)
	}

	var text string
	for _, block := range message.Content {
		text += block.Text
	}
	return advise.ParseRecommendation(text, req.Candidates)
}
