package scheduler

import "fmt"

// Pair is one API-key/model combination, the unit of quota tracking.
// Immutable once constructed.
type Pair struct {
	APIKey string
	Model  string
	// Priority orders models within a key; lower is preferred (newer, more
	// capable models come first in the configured list).
	Priority int
}

// ID returns a stable identifier safe for logs (the key is truncated).
func (p Pair) ID() string {
	key := p.APIKey
	if len(key) > 8 {
		key = key[:8]
	}
	return fmt.Sprintf("%s…/%s", key, p.Model)
}

// BuildMatrix expands keys × models into the full pair matrix, preserving
// model priority order.
func BuildMatrix(apiKeys, models []string) []Pair {
	pairs := make([]Pair, 0, len(apiKeys)*len(models))
	for _, key := range apiKeys {
		for priority, model := range models {
			pairs = append(pairs, Pair{APIKey: key, Model: model, Priority: priority})
		}
	}
	return pairs
}
