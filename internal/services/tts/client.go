// Package tts wraps the narration synthesis service. Synthesis failures are
// recoverable upstream (the assembler substitutes a default duration), so the
// client keeps no retry logic of its own.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// Config captures runtime settings for the synthesis service.
type Config struct {
	Endpoint       string
	APIKey         string
	Voice          string
	TimeoutSeconds int
}

// Synthesizer produces narration audio for a sentence.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, destPath string) error
}

// Client is the HTTP synthesis client.
type Client struct {
	cfg        Config
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

// NewClient constructs a synthesis client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Voice = strings.TrimSpace(cfg.Voice)
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type synthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize renders text to speech and writes the audio to destPath.
func (c *Client) Synthesize(ctx context.Context, text, destPath string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("tts synthesize: text required")
	}
	if c.cfg.Endpoint == "" {
		return errors.New("tts synthesize: endpoint required")
	}

	encoded, err := json.Marshal(synthesisRequest{Text: text, Voice: c.cfg.Voice})
	if err != nil {
		return fmt.Errorf("tts synthesize: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("tts synthesize: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tts synthesize: http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tts synthesize: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("tts synthesize: open dest: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("tts synthesize: write audio: %w", err)
	}
	return out.Close()
}

var _ Synthesizer = (*Client)(nil)
