// Package music generates a background-music bed on demand, the middle option
// in the BGM selection chain (local library, generated, none).
package music

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

const defaultHTTPTimeout = 120 * time.Second

// Config captures runtime settings for the music generation service.
type Config struct {
	Endpoint       string
	APIKey         string
	TimeoutSeconds int
}

// Generator produces a music track for a mood tag.
type Generator interface {
	Generate(ctx context.Context, mood, destPath string) error
}

// Client is the HTTP music generation client.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient constructs a music generation client.
func NewClient(cfg Config) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
}

type generateRequest struct {
	Mood string `json:"mood"`
}

// Generate renders a music track for the mood and writes it to destPath.
func (c *Client) Generate(ctx context.Context, mood, destPath string) error {
	mood = strings.TrimSpace(mood)
	if mood == "" {
		return errors.New("music generate: mood required")
	}
	if c.cfg.Endpoint == "" {
		return errors.New("music generate: endpoint required")
	}

	encoded, err := json.Marshal(generateRequest{Mood: mood})
	if err != nil {
		return fmt.Errorf("music generate: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("music generate: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("music generate: http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("music generate: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("music generate: open dest: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("music generate: write audio: %w", err)
	}
	return out.Close()
}

var _ Generator = (*Client)(nil)
