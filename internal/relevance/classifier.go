// Package relevance judges whether a footage candidate fits the video being
// assembled. The asset cache treats it as a black box; the default
// implementation asks the LLM scheduler.
package relevance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"clipforge/internal/logging"
)

// Classifier reports whether a candidate thumbnail matches the textual context.
type Classifier interface {
	Relevant(ctx context.Context, thumbnailURL, keyword, videoContext string) (bool, error)
}

// Executor is the slice of the scheduler the classifier needs.
type Executor interface {
	Execute(ctx context.Context, prompt string) (string, error)
}

// LLMClassifier asks the language model for a yes/no relevance verdict.
type LLMClassifier struct {
	executor Executor
	logger   *slog.Logger
}

// NewLLMClassifier builds a classifier backed by the request scheduler.
func NewLLMClassifier(executor Executor, logger *slog.Logger) *LLMClassifier {
	return &LLMClassifier{
		executor: executor,
		logger:   logging.NewComponentLogger(logger, "relevance"),
	}
}

const verdictPrompt = `You are reviewing stock footage for a short news video.
Video context: %s
Search keyword: %s
Candidate thumbnail: %s

Answer with exactly one word, YES or NO: would this footage visually fit the video?`

// Relevant implements Classifier.
func (c *LLMClassifier) Relevant(ctx context.Context, thumbnailURL, keyword, videoContext string) (bool, error) {
	prompt := fmt.Sprintf(verdictPrompt, strings.TrimSpace(videoContext), strings.TrimSpace(keyword), strings.TrimSpace(thumbnailURL))
	answer, err := c.executor.Execute(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("relevance verdict: %w", err)
	}

	verdict := strings.ToUpper(strings.TrimSpace(answer))
	switch {
	case strings.HasPrefix(verdict, "YES"):
		return true, nil
	case strings.HasPrefix(verdict, "NO"):
		return false, nil
	default:
		c.logger.Debug("unparseable relevance verdict",
			logging.String(logging.FieldEventType, "relevance_unparseable"),
			logging.String(logging.FieldKeyword, keyword),
			logging.String("verdict", verdict))
		return false, nil
	}
}

var _ Classifier = (*LLMClassifier)(nil)
