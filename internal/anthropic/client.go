package anthropic

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
	providerName  = "anthropic"
	defaultAPIURL = "https://api.anthropic.com/v1/messages"
)

type Client struct {
	apiKey string
	model  string
	apiURL string
	client *http.Client
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
		apiURL: defaultAPIURL,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// SetTestTransport points the client at a test server.
func (c *Client) SetTestTransport(baseURL string) {
	c.apiURL = strings.TrimRight(baseURL, "/") + "/v1/messages"
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the request to the Messages API. System-role messages are
// folded into the top-level system prompt.
func (c *Client) Complete(ctx context.Context, r llm.Request) (string, error) {
	model := r.Model
	if model == "" {
		model = c.model
	}

	reqBody := request{Model: model, MaxTokens: r.MaxTokens}
	var system []string
	for _, m := range r.Messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		reqBody.Messages = append(reqBody.Messages, message{Role: m.Role, Content: m.Content})
	}
	reqBody.System = strings.Join(system, "\n\n")

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

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
			pe.Message = errResp.Error.Type + ": " + errResp.Error.Message
			if errResp.Error.Type == "overloaded_error" {
				pe.Kind = llm.KindServer
			}
		}
		return "", pe
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &llm.ProviderError{Provider: providerName, Kind: llm.KindMalformed, Message: "unmarshal response", Err: err}
	}

	if len(apiResp.Content) == 0 || strings.TrimSpace(apiResp.Content[0].Text) == "" {
		return "", &llm.ProviderError{Provider: providerName, Kind: llm.KindEmptyResponse, Err: llm.ErrEmptyResponse}
	}

	return apiResp.Content[0].Text, nil
}

// Validate reports whether the Messages API accepts apiKey.
func (c *Client) Validate(ctx context.Context, apiKey string) bool {
	probe := &Client{apiKey: apiKey, model: c.model, apiURL: c.apiURL, client: c.client}
	_, err := probe.Complete(ctx, llm.Request{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "This is a test message to verify the API key."}},
		MaxTokens: 10,
	})
	return err == nil
}
