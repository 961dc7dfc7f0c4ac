package chat

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/memohai/mimic/internal/conversation"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// ProviderOptions configures an OpenAI-compatible backend.
type ProviderOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func newOpenAIClient(opts ProviderOptions) *openai.Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	cfg.HTTPClient = client
	return openai.NewClientWithConfig(cfg)
}

// OpenAICompleter calls an OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	client *openai.Client
	name   string
	model  string
}

// NewOpenAICompleter creates a completer for the OpenAI API.
func NewOpenAICompleter(opts ProviderOptions) (*OpenAICompleter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("openai model is required")
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = defaultOpenAIBaseURL
	}
	return &OpenAICompleter{client: newOpenAIClient(opts), name: "openai", model: opts.Model}, nil
}

func (c *OpenAICompleter) Name() string  { return c.name }
func (c *OpenAICompleter) Model() string { return c.model }

// Complete sends the transcript as a chat completion request.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (Result, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(req.Transcript),
		MaxTokens:   req.MaxTokens,
		Temperature: explicitZero(req.Temperature),
		TopP:        explicitZero(req.TopP),
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("no choices in response")
	}
	return Result{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// explicitZero keeps a zero sampling value on the wire. The request fields
// are omitempty, so a literal 0 would be dropped and the server would apply
// its own default instead of greedy sampling.
func explicitZero(v float32) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return v
}

// toOpenAIMessages maps blocks to chat messages. Text-only blocks use plain
// string content; blocks carrying images use multi-part content with data
// URLs.
func toOpenAIMessages(transcript conversation.Transcript) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(transcript))
	for _, block := range transcript {
		msg := openai.ChatCompletionMessage{Role: openAIRole(block.Role)}
		if !hasImage(block) {
			texts := make([]string, 0, len(block.Parts))
			for _, part := range block.Parts {
				texts = append(texts, part.Text)
			}
			msg.Content = strings.Join(texts, "\n")
			messages = append(messages, msg)
			continue
		}
		for _, part := range block.Parts {
			switch part.Kind {
			case conversation.PartImage:
				msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    part.DataURL(),
						Detail: openai.ImageURLDetailAuto,
					},
				})
			default:
				msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			}
		}
		messages = append(messages, msg)
	}
	return messages
}

func hasImage(block conversation.Block) bool {
	for _, part := range block.Parts {
		if part.Kind == conversation.PartImage {
			return true
		}
	}
	return false
}

func openAIRole(role conversation.Role) string {
	switch role {
	case conversation.RoleSystem:
		return openai.ChatMessageRoleSystem
	case conversation.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
