// Package assetcache resolves footage search keywords to local media files.
//
// Downloaded footage is stored content-addressed (one directory per keyword
// hash, files named by provider asset id) with metadata in SQLite. A cache hit
// is only accepted after re-verifying that the backing file exists and that
// the footage is still relevant to the *current* video context; the same
// keyword may have been cached for a very different story. Eviction is
// age-based on last use.
package assetcache
