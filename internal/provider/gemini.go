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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiRequest represents the request body for the Gemini generateContent API
type GeminiRequest struct {
	Contents []GeminiContent `json:"contents"`
}

// GeminiContent represents one content block in a Gemini request
type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart represents one part of a content block
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiResponse represents the response from the Gemini generateContent API
type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []GeminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finish_reason"`
	} `json:"candidates"`
}

// Gemini is the single-prompt adapter. The API has no native multi-turn
// message array, so the whole history is collapsed into one prompt string:
// message contents joined by a single space in history order, roles dropped.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewGemini(pc config.Provider, client *http.Client) *Gemini {
	baseURL := pc.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &Gemini{
		apiKey:     pc.APIKey,
		model:      pc.Model,
		baseURL:    baseURL,
		httpClient: client,
	}
}

func (g *Gemini) Name() string { return config.ProviderGemini }

// singlePrompt flattens history into the prompt string sent to Gemini.
func singlePrompt(history []conversation.Message) string {
	contents := make([]string, len(history))
	for i, msg := range history {
		contents[i] = msg.Content
	}
	return strings.Join(contents, " ")
}

func (g *Gemini) Complete(ctx context.Context, history []conversation.Message) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY not set")
	}

	reqBody := GeminiRequest{
		Contents: []GeminiContent{
			{Parts: []GeminiPart{{Text: singlePrompt(history)}}},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-goog-api-key", g.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := g.httpClient.Do(req)
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

	var apiResp GeminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(apiResp.Candidates) > 0 && len(apiResp.Candidates[0].Content.Parts) > 0 {
		return apiResp.Candidates[0].Content.Parts[0].Text, nil
	}

	return "", fmt.Errorf("empty response from Gemini")
}
