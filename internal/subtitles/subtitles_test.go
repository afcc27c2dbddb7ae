package subtitles

import (
	"math"
	"strings"
	"testing"
)

func TestBuildSingleShortScene(t *testing.T) {
	cues, err := Build([]string{"Hello world"}, []float64{2.5}, DefaultMaxLineChars)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(cues) != 1 {
		t.Fatalf("len = %d, want 1", len(cues))
	}
	cue := cues[0]
	if cue.Index != 1 || cue.Start != 0 || cue.End != 2.5 {
		t.Errorf("cue = %+v", cue)
	}
	if len(cue.Lines) != 1 || cue.Lines[0] != "Hello world" {
		t.Errorf("lines = %q", cue.Lines)
	}
}

func TestBuildCueDurationsSumToSceneDuration(t *testing.T) {
	text := "The volcano erupted without warning last night, sending a column of ash " +
		"eleven kilometers into the sky and forcing thousands of residents to evacuate " +
		"the surrounding valleys before dawn broke over the island"
	sceneDur := 14.37

	cues, err := Build([]string{text}, []float64{sceneDur}, DefaultMaxLineChars)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(cues) < 2 {
		t.Fatalf("expected multiple cues, got %d", len(cues))
	}

	sum := 0.0
	for _, cue := range cues {
		sum += cue.Duration()
	}
	if math.Abs(sum-sceneDur) > 1e-9 {
		t.Errorf("cue durations sum to %f, want %f", sum, sceneDur)
	}

	// Each cue's share of the scene should track its character count.
	totalChars := 0
	charCount := func(c Cue) int {
		n := 0
		for _, line := range c.Lines {
			n += len([]rune(line))
		}
		return n
	}
	for _, cue := range cues {
		totalChars += charCount(cue)
	}
	for i, cue := range cues[:len(cues)-1] { // last cue absorbs rounding
		want := sceneDur * float64(charCount(cue)) / float64(totalChars)
		if math.Abs(cue.Duration()-want) > 1e-9 {
			t.Errorf("cue %d duration = %f, want %f", i, cue.Duration(), want)
		}
	}
}

func TestBuildRespectsLineAndCueLimits(t *testing.T) {
	text := strings.Repeat("quick brown foxes jump over lazy dogs ", 6)
	cues, err := Build([]string{text}, []float64{20}, 20)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, cue := range cues {
		if len(cue.Lines) == 0 || len(cue.Lines) > 3 {
			t.Errorf("cue has %d lines", len(cue.Lines))
		}
		for _, line := range cue.Lines {
			if len([]rune(line)) > 20 {
				t.Errorf("line %q exceeds 20 chars", line)
			}
		}
	}
}

func TestBuildScenesStayContiguous(t *testing.T) {
	texts := []string{"First scene narration here", "", "Third scene closes the story"}
	durations := []float64{3.2, 1.5, 4.1}

	cues, err := Build(texts, durations, DefaultMaxLineChars)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// The empty middle scene still occupies timeline space.
	if cues[0].Start != 0 || math.Abs(cues[0].End-3.2) > 1e-9 {
		t.Errorf("first cue = [%f, %f]", cues[0].Start, cues[0].End)
	}
	last := cues[len(cues)-1]
	if math.Abs(last.Start-4.7) > 1e-9 || math.Abs(last.End-8.8) > 1e-9 {
		t.Errorf("last cue = [%f, %f], want [4.7, 8.8]", last.Start, last.End)
	}

	for i, cue := range cues {
		if cue.Index != i+1 {
			t.Errorf("cue %d has index %d", i, cue.Index)
		}
	}
}

func TestBuildLengthMismatch(t *testing.T) {
	if _, err := Build([]string{"a", "b"}, []float64{1}, 0); err == nil {
		t.Fatal("expected error on length mismatch")
	}
}

func TestWrapKeepsLongWordIntact(t *testing.T) {
	lines := wrap("a pneumonoultramicroscopic word", 10)
	found := false
	for _, line := range lines {
		if line == "pneumonoultramicroscopic" {
			found = true
		}
	}
	if !found {
		t.Errorf("long word should occupy its own line, got %q", lines)
	}
}

func TestRenderFormat(t *testing.T) {
	cues := []Cue{
		{Index: 1, Start: 0, End: 2.5, Lines: []string{"Hello world"}},
		{Index: 2, Start: 2.5, End: 65.123, Lines: []string{"Line one", "Line two"}},
	}
	got := Render(cues)
	want := "1\n00:00:00,000 --> 00:00:02,500\nHello world\n" +
		"\n2\n00:00:02,500 --> 00:01:05,123\nLine one\nLine two\n"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}
