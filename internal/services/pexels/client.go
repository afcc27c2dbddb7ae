package pexels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// Config captures runtime settings for the footage provider.
type Config struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
}

// Client talks to the footage provider.
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

// NewClient constructs a footage provider client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.pexels.com/videos"
	}
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Rendition is one downloadable variant of a candidate video.
type Rendition struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Link   string `json:"link"`
}

// Candidate is one search result in provider-ranked order.
type Candidate struct {
	ID         int64       `json:"id"`
	Duration   int         `json:"duration"`
	Image      string      `json:"image"`
	VideoFiles []Rendition `json:"video_files"`
}

// ThumbnailURL returns the relevance-check thumbnail for the candidate.
func (c Candidate) ThumbnailURL() string {
	return c.Image
}

// BestRendition returns the widest rendition at or above minWidth, or false
// when none qualifies.
func (c Candidate) BestRendition(minWidth int) (Rendition, bool) {
	var best Rendition
	found := false
	for _, r := range c.VideoFiles {
		if r.Width < minWidth || strings.TrimSpace(r.Link) == "" {
			continue
		}
		if !found || r.Width > best.Width {
			best = r
			found = true
		}
	}
	return best, found
}

type searchResponse struct {
	Videos []Candidate `json:"videos"`
}

// Search returns up to perPage candidates for the keyword in provider-ranked order.
func (c *Client) Search(ctx context.Context, keyword string, perPage int) ([]Candidate, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.New("pexels search: keyword required")
	}
	if c.cfg.APIKey == "" {
		return nil, errors.New("pexels search: api key required")
	}
	if perPage <= 0 {
		perPage = 5
	}

	endpoint := c.cfg.BaseURL + "/search?query=" + url.QueryEscape(keyword) + "&per_page=" + strconv.Itoa(perPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("pexels search: new request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels search: http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pexels search: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("pexels search: decode response: %w", err)
	}
	return decoded.Videos, nil
}

// Download streams the rendition to destPath, rejecting payloads larger than
// maxBytes rather than stalling on them. A partial file is removed on failure.
func (c *Client) Download(ctx context.Context, rendition Rendition, destPath string, maxBytes int64) error {
	if strings.TrimSpace(rendition.Link) == "" {
		return errors.New("pexels download: empty rendition link")
	}
	if maxBytes <= 0 {
		return errors.New("pexels download: byte ceiling required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rendition.Link, nil)
	if err != nil {
		return fmt.Errorf("pexels download: new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pexels download: http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pexels download: http %d", resp.StatusCode)
	}
	if resp.ContentLength > maxBytes {
		return fmt.Errorf("pexels download: %d bytes exceeds ceiling %d", resp.ContentLength, maxBytes)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("pexels download: open dest: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("pexels download: copy: %w", err)
	}
	if written > maxBytes {
		_ = os.Remove(destPath)
		return fmt.Errorf("pexels download: payload exceeds ceiling %d", maxBytes)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(destPath)
		return err
	}
	return nil
}
