package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

// Config captures the runtime settings required to talk to the Gemini API.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
}

// Client issues generateContent requests for a given credential/model pair.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a Gemini client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Result carries the generated text and the token cost the provider reported.
type Result struct {
	Text        string
	TotalTokens int
}

// StatusError reports a non-2xx provider response. The scheduler maps status
// codes onto cooldown classes.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate issues one generateContent call with the supplied credential and model.
func (c *Client) Generate(ctx context.Context, apiKey, model, prompt string) (Result, error) {
	var empty Result
	apiKey = strings.TrimSpace(apiKey)
	model = strings.TrimSpace(model)
	prompt = strings.TrimSpace(prompt)
	if apiKey == "" {
		return empty, errors.New("gemini generate: api key required")
	}
	if model == "" {
		return empty, errors.New("gemini generate: model required")
	}
	if prompt == "" {
		return empty, errors.New("gemini generate: prompt required")
	}

	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return empty, fmt.Errorf("gemini generate: encode body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(model), url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("gemini generate: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("gemini generate: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("gemini generate: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return empty, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return empty, fmt.Errorf("gemini generate: decode response: %w", err)
	}
	if decoded.Error != nil {
		return empty, fmt.Errorf("gemini generate: api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return empty, errors.New("gemini generate: empty candidates")
	}

	text := StripCodeFence(decoded.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return empty, errors.New("gemini generate: empty content")
	}
	return Result{Text: text, TotalTokens: decoded.UsageMetadata.TotalTokenCount}, nil
}

// StripCodeFence removes a surrounding markdown code fence, which Gemini often
// wraps payloads in even when asked not to.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		// Drop the language tag line (```json, ```text, ...).
		first := strings.TrimSpace(body[:idx])
		if first == "" || !strings.ContainsAny(first, " \t") {
			body = body[idx+1:]
		}
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
