package render

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/services"
)

type fakeFootage struct {
	mu       sync.Mutex
	requests []string
	missing  map[string]bool
	err      error
}

func (f *fakeFootage) Resolve(ctx context.Context, keyword, videoContext, destPath string) error {
	f.mu.Lock()
	f.requests = append(f.requests, keyword)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.missing[keyword] {
		return services.Wrap(services.ErrNotFound, "assetcache", "resolve", keyword, nil)
	}
	return nil
}

type fakeSynth struct {
	mu     sync.Mutex
	failed map[string]bool
	calls  int
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, destPath string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	for fragment := range f.failed {
		if strings.Contains(text, fragment) {
			return errors.New("voice service down")
		}
	}
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	return &cfg
}

func newTestAssembler(t *testing.T, cfg *config.Config, footage *fakeFootage, synth *fakeSynth, enc Encoder, sel *Selector) *Assembler {
	t.Helper()
	a := NewAssembler(cfg, footage, synth, enc, sel, logging.NewNop())
	a.probeAudio = func(ctx context.Context, path string) (float64, error) {
		return 6.5, nil
	}
	return a
}

func TestAssembleSceneProducesClip(t *testing.T) {
	cfg := testConfig(t)
	footage := &fakeFootage{}
	synth := &fakeSynth{}
	enc := &recordingEncoder{}
	a := newTestAssembler(t, cfg, footage, synth, enc, NewSelector("h264_nvenc", "libx264"))

	job := Job{ID: "job-1", Title: "Volcanoes of Iceland", Channel: "science"}
	scene := Scene{Index: 0, Sentence: "The eruption began at dawn.", Keyword: "volcano"}

	result, err := a.AssembleScene(context.Background(), job, scene, t.TempDir())
	if err != nil {
		t.Fatalf("AssembleScene failed: %v", err)
	}
	if result.Index != 0 || result.Silence {
		t.Errorf("result = %+v", result)
	}
	// 6.5s narration at 1.3x playback.
	if math.Abs(result.Duration-5.0) > 1e-9 {
		t.Errorf("duration = %f, want 5.0", result.Duration)
	}
	if result.Subtitle != "The eruption began at dawn." {
		t.Errorf("subtitle = %q", result.Subtitle)
	}
	if enc.callCount() != 1 {
		t.Fatalf("encoder calls = %d, want 1", enc.callCount())
	}
	if !hasArg(enc.calls[0], "h264_nvenc") {
		t.Errorf("first encode should use the hardware codec, args = %v", enc.calls[0])
	}
}

func TestAssembleSceneStripsSilenceCue(t *testing.T) {
	cfg := testConfig(t)
	a := newTestAssembler(t, cfg, &fakeFootage{}, &fakeSynth{}, &recordingEncoder{}, NewSelector("", "libx264"))

	job := Job{ID: "job-1", Title: "t", Channel: "science"}
	scene := Scene{Index: 1, Sentence: "And then... [SILENCE] nothing.", Keyword: "night sky"}

	result, err := a.AssembleScene(context.Background(), job, scene, t.TempDir())
	if err != nil {
		t.Fatalf("AssembleScene failed: %v", err)
	}
	if !result.Silence {
		t.Error("silence cue should be flagged")
	}
	if result.Subtitle != "And then... nothing." {
		t.Errorf("subtitle = %q", result.Subtitle)
	}
}

func TestAssembleSceneFallsBackToChannelKeyword(t *testing.T) {
	cfg := testConfig(t)
	footage := &fakeFootage{missing: map[string]bool{"quasar jet": true}}
	a := newTestAssembler(t, cfg, footage, &fakeSynth{}, &recordingEncoder{}, NewSelector("", "libx264"))

	job := Job{ID: "job-1", Title: "t", Channel: "science"}
	scene := Scene{Index: 0, Sentence: "s", Keyword: "quasar jet"}

	if _, err := a.AssembleScene(context.Background(), job, scene, t.TempDir()); err != nil {
		t.Fatalf("AssembleScene failed: %v", err)
	}
	if len(footage.requests) != 2 || footage.requests[1] != "science technology" {
		t.Errorf("requests = %v, want fallback to the channel keyword", footage.requests)
	}
}

func TestAssembleSceneFailsWhenFallbackMisses(t *testing.T) {
	cfg := testConfig(t)
	footage := &fakeFootage{missing: map[string]bool{"quasar jet": true, "science technology": true}}
	a := newTestAssembler(t, cfg, footage, &fakeSynth{}, &recordingEncoder{}, NewSelector("", "libx264"))

	job := Job{ID: "job-1", Title: "t", Channel: "science"}
	scene := Scene{Index: 0, Sentence: "s", Keyword: "quasar jet"}

	_, err := a.AssembleScene(context.Background(), job, scene, t.TempDir())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAssembleSceneUsesDefaultDurationOnSynthesisFailure(t *testing.T) {
	cfg := testConfig(t)
	synth := &fakeSynth{failed: map[string]bool{"eruption": true}}
	enc := &recordingEncoder{}
	a := newTestAssembler(t, cfg, &fakeFootage{}, synth, enc, NewSelector("", "libx264"))

	job := Job{ID: "job-1", Title: "t", Channel: "science"}
	scene := Scene{Index: 0, Sentence: "The eruption began.", Keyword: "volcano"}

	result, err := a.AssembleScene(context.Background(), job, scene, t.TempDir())
	if err != nil {
		t.Fatalf("AssembleScene should absorb synthesis failure: %v", err)
	}
	want := cfg.Render.DefaultNarrationSecs / cfg.Render.PlaybackSpeed
	if math.Abs(result.Duration-want) > 1e-9 {
		t.Errorf("duration = %f, want default %f", result.Duration, want)
	}

	// The clip must still carry an audio track so the concat demuxer sees a
	// uniform stream layout across all scenes.
	args := enc.calls[0]
	if !hasArg(args, "anullsrc=channel_layout=stereo:sample_rate=44100") {
		t.Errorf("degraded scene should get a silent audio bed, args = %v", args)
	}
	if !hasArg(args, "1:a:0") {
		t.Errorf("silent bed should be mapped, args = %v", args)
	}
	if hasArg(args, "-an") {
		t.Errorf("degraded scene must not be encoded audio-less, args = %v", args)
	}
}

func TestAssembleSceneUsesReportStill(t *testing.T) {
	cfg := testConfig(t)
	footage := &fakeFootage{}
	enc := &recordingEncoder{}
	a := newTestAssembler(t, cfg, footage, &fakeSynth{}, enc, NewSelector("", "libx264"))

	still := filepath.Join(t.TempDir(), "headline.png")
	job := Job{ID: "job-1", Title: "t", Channel: "science", Report: true, Stills: []string{still}}
	scene := Scene{Index: 0, Sentence: "s", Keyword: "unused"}

	if _, err := a.AssembleScene(context.Background(), job, scene, t.TempDir()); err != nil {
		t.Fatalf("AssembleScene failed: %v", err)
	}
	if len(footage.requests) != 0 {
		t.Errorf("footage requested for a report still: %v", footage.requests)
	}
	if !hasArg(enc.calls[0], "-loop") || !hasArg(enc.calls[0], still) {
		t.Errorf("still should be loop-encoded, args = %v", enc.calls[0])
	}
}

func TestStripSilenceCue(t *testing.T) {
	cases := []struct {
		in     string
		out    string
		silent bool
	}{
		{"plain sentence", "plain sentence", false},
		{"before [silence] after", "before after", true},
		{"before [SILENCE] after", "before after", true},
		{"[silence] leading", "leading", true},
		// Lowercasing İ grows the string by a byte; the cue offset must not shift.
		{"İstanbul sleeps. [Silence] Quiet.", "İstanbul sleeps. Quiet.", true},
	}
	for _, tc := range cases {
		got, silent := stripSilenceCue(tc.in)
		if got != tc.out || silent != tc.silent {
			t.Errorf("stripSilenceCue(%q) = (%q, %v), want (%q, %v)", tc.in, got, silent, tc.out, tc.silent)
		}
	}
}
