// Package render turns scripted scenes into a finished vertical video.
//
// The Assembler produces one encoded clip per scene (footage or report still,
// narration, uniform speed-up); the Coordinator fans scenes out concurrently,
// restores input order on join, and drives finalization: subtitle generation,
// lossless concat, and the subtitle-burn/BGM-mix pass. Encoding attempts a
// hardware codec first and downgrades to software once per process, never
// retrying hardware after the first observed failure.
package render
