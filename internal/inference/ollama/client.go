package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docpipe/internal/config"
	"docpipe/internal/inference"
	"docpipe/internal/port"
)

func init() {
	inference.RegisterProvider("ollama", func(cfg *config.InferenceConfig) (port.InferenceClient, error) {
		return NewClient(cfg), nil
	})
}

// Client implements port.InferenceClient against a local Ollama server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates an Ollama-backed inference client.
func NewClient(cfg *config.InferenceConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Images  []string        `json:"images,omitempty"`
	Options generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return "", fmt.Errorf("ollama model must be specified (e.g. llava, llama3.1:8b)")
	}

	apiReq := generateRequest{
		Model:  model,
		Prompt: req.Prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: 0.1,
			NumPredict:  req.MaxTokens,
		},
	}
	if len(req.Image) > 0 {
		apiReq.Images = []string{base64.StdEncoding.EncodeToString(req.Image)}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", inference.NewTransportError("ollama", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", inference.NewTransportError("ollama", fmt.Errorf("reading response: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("ollama API error (status %d): %s", httpResp.StatusCode, string(respBody))
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			baseErr = fmt.Errorf("ollama API error (status %d): %s", httpResp.StatusCode, apiErr.Error)
		}
		if httpResp.StatusCode >= http.StatusInternalServerError ||
			httpResp.StatusCode == http.StatusTooManyRequests {
			return "", inference.NewTransportError("ollama", baseErr)
		}
		return "", baseErr
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}
	return resp.Response, nil
}
