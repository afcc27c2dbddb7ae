package services

import "context"

type contextKey string

const (
	jobIDKey      contextKey = "job_id"
	sceneIndexKey contextKey = "scene_index"
)

// WithJobID annotates context with the video job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSceneIndex annotates context with the 0-based scene index.
func WithSceneIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, sceneIndexKey, index)
}

// SceneIndexFromContext extracts the scene index if present.
func SceneIndexFromContext(ctx context.Context) (int, bool) {
	if v, ok := ctx.Value(sceneIndexKey).(int); ok {
		return v, true
	}
	return 0, false
}
