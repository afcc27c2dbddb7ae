// Package services defines the shared error taxonomy and context plumbing for
// external collaborators (LLM, footage provider, TTS, encoder). Sub-packages
// hold the concrete HTTP clients.
package services
