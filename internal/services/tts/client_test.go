package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestSynthesizeWritesAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text  string `json:"text"`
			Voice string `json:"voice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Text != "Breaking news tonight." {
			t.Errorf("text = %q", body.Text)
		}
		if body.Voice != "en-US-Standard-D" {
			t.Errorf("voice = %q", body.Voice)
		}
		w.Write([]byte("fake-mp3-bytes"))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Voice: "en-US-Standard-D"})
	dest := filepath.Join(t.TempDir(), "narration.mp3")

	if err := client.Synthesize(context.Background(), "Breaking news tonight.", dest); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if string(data) != "fake-mp3-bytes" {
		t.Errorf("audio = %q", data)
	}
}

func TestSynthesizeSurfacesHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	dest := filepath.Join(t.TempDir(), "narration.mp3")
	if err := client.Synthesize(context.Background(), "text", dest); err == nil {
		t.Fatal("expected error on 503")
	}
}
