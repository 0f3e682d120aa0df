package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ChatGate/internal/config"
	"ChatGate/internal/conversation"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com"

// Turn markers for the completion prompt format. Every turn is prefixed
// with its role marker and the prompt ends with a bare assistant marker so
// the model completes the assistant's next turn.
const (
	humanPrompt     = "\n\nHuman: "
	assistantPrompt = "\n\nAssistant: "
	trailingPrompt  = "\n\nAssistant:"
)

// AnthropicRequest represents the request body for the Anthropic completion API
type AnthropicRequest struct {
	Model             string `json:"model"`
	Prompt            string `json:"prompt"`
	MaxTokensToSample int    `json:"max_tokens_to_sample"`
}

// AnthropicResponse represents the response from the Anthropic completion API
type AnthropicResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Completion string `json:"completion"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
}

// Anthropic is the turn-prefix adapter: history is serialized into one
// marker-delimited prompt and the reply comes back without a role.
type Anthropic struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewAnthropic(pc config.Provider, client *http.Client) *Anthropic {
	baseURL := pc.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &Anthropic{
		apiKey:     pc.APIKey,
		model:      pc.Model,
		baseURL:    baseURL,
		httpClient: client,
	}
}

func (a *Anthropic) Name() string { return config.ProviderAnthropic }

// turnPrefixPrompt serializes history into the completion prompt. Assistant
// turns get the assistant marker; every other role counts as a human turn.
func turnPrefixPrompt(history []conversation.Message) string {
	var b strings.Builder
	for _, msg := range history {
		if msg.Role == conversation.RoleAssistant {
			b.WriteString(assistantPrompt)
		} else {
			b.WriteString(humanPrompt)
		}
		b.WriteString(msg.Content)
	}
	b.WriteString(trailingPrompt)
	return b.String()
}

func (a *Anthropic) Complete(ctx context.Context, history []conversation.Message) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	reqBody := AnthropicRequest{
		Model:             a.model,
		Prompt:            turnPrefixPrompt(history),
		MaxTokensToSample: 1024,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/complete", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var apiResp AnthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Completion == "" {
		return "", fmt.Errorf("empty response from Anthropic")
	}

	return apiResp.Completion, nil
}
