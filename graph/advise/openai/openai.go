// Package openai provides a routing advisor backed by OpenAI chat models.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/halcyon-ai/agentgraph/graph/advise"
)

const defaultModel = "gpt-4o-mini"

// Advisor implements advise.Advisor using the OpenAI API with JSON-object
// response format, so recommendations parse reliably.
//
// Advisor is safe for concurrent use.
type Advisor struct {
	client *openai.Client
	model  string
}

// New creates an OpenAI-backed advisor. An empty model selects a fast
// default suitable for routing advice.
func New(apiKey, model string) (*Advisor, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		model = defaultModel
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Advisor{client: &client, model: model}, nil
}

// Recommend implements advise.Advisor.
func (a *Advisor) Recommend(ctx context.Context, req advise.Request) (advise.Recommendation, error) {
	prompt := advise.BuildPrompt(req)

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		},
	})
	if err != nil {
		return advise.Recommendation{}, fmt.Errorf("openai advisor: %w", err)
	}
	if len(completion.Choices) == 0 {
		return advise.Recommendation{}, fmt.Errorf("openai advisor: %w", advise.ErrMalformedRecommendation)
	}
	return advise.ParseRecommendation(completion.Choices[0].Message.Content, req.Candidates)
}
