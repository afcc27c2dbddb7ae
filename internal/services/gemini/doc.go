// Package gemini wraps the Gemini generateContent HTTP API. The client issues
// a single request per call; retry, quota accounting, and key/model rotation
// live in the scheduler package.
package gemini
