// Package pexels wraps the stock footage provider's search and download API.
// Candidates expose a thumbnail for relevance checks and a list of renditions;
// only renditions at or above the configured minimum width are eligible and
// downloads are capped by a hard byte ceiling.
package pexels
