package decision

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog/log"
)

// Reasoner is the external natural-language collaborator. It takes a prompt
// and returns whatever text the model produced; the gate tolerates anything.
type Reasoner interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// ReasonerConfig configures the OpenAI-backed reasoner.
type ReasonerConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // override for compatible endpoints and tests
	MaxTokens   int
	Temperature float32
}

// OpenAIReasoner calls a chat-completion model.
type OpenAIReasoner struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

const systemPrompt = `You are a reconnaissance planning assistant. Given a user's request
and their plan tier, propose zero or more tool executions as JSON:
{"actions":[{"tool":"","target":"","confidence":0.0,"reason":""}],
"reasoning":"","confidence":0.0,"needs_clarification":false}
Only propose tools from the provided list. Respond with JSON only.`

// NewOpenAIReasoner builds a reasoner from config.
func NewOpenAIReasoner(cfg ReasonerConfig) (*OpenAIReasoner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("reasoner: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	log.Info().Str("model", cfg.Model).Msg("reasoning collaborator initialized")
	return &OpenAIReasoner{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Infer sends one chat completion and returns the raw text of the first
// choice.
func (r *OpenAIReasoner) Infer(ctx context.Context, prompt string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("reasoning call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("reasoning call returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
