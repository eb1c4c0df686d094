package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = openai.GPT4o

type OpenAICompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAICaller talks to OpenAI or an Azure OpenAI deployment.
type OpenAICaller struct {
	client    OpenAICompleter
	model     string
	maxTokens int
}

func NewOpenAICaller(cfg Config) (*OpenAICaller, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrNotConfigured
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	var clientCfg openai.ClientConfig
	switch {
	case cfg.Provider == ProviderAzure:
		if baseURL == "" {
			return nil, errors.New("azure provider requires a base url")
		}
		clientCfg = openai.DefaultAzureConfig(key, baseURL)
		if v := strings.TrimSpace(cfg.APIVersion); v != "" {
			clientCfg.APIVersion = v
		}
	default:
		clientCfg = openai.DefaultConfig(key)
		if baseURL != "" {
			clientCfg.BaseURL = baseURL
		}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAICaller{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (o *OpenAICaller) ModelName() string { return o.model }

func (o *OpenAICaller) Invoke(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
