package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"docpipe/internal/config"
	"docpipe/internal/inference"
	"docpipe/internal/port"
)

func init() {
	inference.RegisterProvider("openai", func(cfg *config.InferenceConfig) (port.InferenceClient, error) {
		return NewClient(cfg)
	})
}

// Client implements port.InferenceClient using the OpenAI Chat Completions
// API. Any OpenAI-compatible endpoint works via base_url.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates an OpenAI-backed inference client.
func NewClient(cfg *config.InferenceConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout()}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

func (c *Client) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	message := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Image) > 0 {
		dataURI := fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(req.Image))
		message.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURI}},
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
		}
	} else {
		message.Content = req.Prompt
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    []openai.ChatCompletionMessage{message},
		MaxTokens:   req.MaxTokens,
		Temperature: 0.1,
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			if apiErr.HTTPStatusCode >= http.StatusInternalServerError ||
				apiErr.HTTPStatusCode == http.StatusTooManyRequests {
				return "", inference.NewTransportError("openai", err)
			}
			return "", fmt.Errorf("openai API error: %w", err)
		}
		// Network-level failures arrive unwrapped.
		return "", inference.NewTransportError("openai", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from API: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
