package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/llm"
)

const (
	providerName   = "openai"
	defaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel matches the model the documentation prompts were tuned on.
	DefaultModel = "gpt-4o"
)

type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// SetTestTransport points the client at a test server.
func (c *Client) SetTestTransport(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

type request struct {
	Model     string        `json:"model"`
	Messages  []llm.Message `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete calls the chat completions endpoint and returns the first choice.
func (c *Client) Complete(ctx context.Context, r llm.Request) (string, error) {
	model := r.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(request{Model: model, Messages: r.Messages, MaxTokens: r.MaxTokens})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &llm.ProviderError{Provider: providerName, Kind: llm.Classify(err), Message: "api call failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &llm.ProviderError{Provider: providerName, Kind: llm.KindNetwork, Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		pe := &llm.ProviderError{
			Provider:   providerName,
			Kind:       llm.KindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			pe.Message = errResp.Error.Message
		}
		return "", pe
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &llm.ProviderError{Provider: providerName, Kind: llm.KindMalformed, Message: "unmarshal response", Err: err}
	}

	if len(apiResp.Choices) == 0 || strings.TrimSpace(apiResp.Choices[0].Message.Content) == "" {
		return "", &llm.ProviderError{Provider: providerName, Kind: llm.KindEmptyResponse, Err: llm.ErrEmptyResponse}
	}

	return apiResp.Choices[0].Message.Content, nil
}

// Validate issues one minimal completion with the given key and reports
// whether the provider accepted it.
func (c *Client) Validate(ctx context.Context, apiKey string) bool {
	probe := &Client{apiKey: apiKey, model: c.model, baseURL: c.baseURL, client: c.client}
	_, err := probe.Complete(ctx, llm.Request{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "This is a test message to verify the API key."}},
		MaxTokens: 10,
	})
	return err == nil
}
