// Package ffprobe wraps the ffprobe binary for media inspection. The pipeline
// uses it to measure synthesized narration audio and to sanity-check encoded
// clips.
package ffprobe
