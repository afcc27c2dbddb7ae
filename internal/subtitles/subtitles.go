// Package subtitles builds SRT tracks from narration text and scene timings.
package subtitles

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultMaxLineChars bounds a rendered subtitle line. Chosen for 1080-wide
// vertical video at the burn-in font size.
const DefaultMaxLineChars = 26

const maxLinesPerCue = 3

// Cue is one SRT display block.
type Cue struct {
	Index int
	Start float64
	End   float64
	Lines []string
}

// Duration returns the cue's screen time in seconds.
func (c Cue) Duration() float64 {
	return c.End - c.Start
}

// Build converts per-scene narration text and durations into a flat cue list.
// Each scene's text is word-wrapped to maxLineChars, grouped into cues of up
// to three lines, and the scene's duration is split across its cues
// proportionally to character count. Scenes with empty text still consume
// their duration on the timeline but emit no cue.
func Build(texts []string, durations []float64, maxLineChars int) ([]Cue, error) {
	if len(texts) != len(durations) {
		return nil, fmt.Errorf("subtitles: %d texts but %d durations", len(texts), len(durations))
	}
	if maxLineChars <= 0 {
		maxLineChars = DefaultMaxLineChars
	}

	var cues []Cue
	offset := 0.0
	for i, text := range texts {
		sceneDur := durations[i]
		if sceneDur < 0 {
			return nil, fmt.Errorf("subtitles: negative duration %f for scene %d", sceneDur, i)
		}

		lines := wrap(text, maxLineChars)
		if len(lines) == 0 {
			offset += sceneDur
			continue
		}

		groups := group(lines, maxLinesPerCue)
		weights := make([]int, len(groups))
		total := 0
		for gi, g := range groups {
			for _, line := range g {
				weights[gi] += len([]rune(line))
			}
			total += weights[gi]
		}

		start := offset
		for gi, g := range groups {
			share := sceneDur * float64(weights[gi]) / float64(total)
			end := start + share
			if gi == len(groups)-1 {
				// Absorb rounding drift so scenes stay contiguous.
				end = offset + sceneDur
			}
			cues = append(cues, Cue{
				Index: len(cues) + 1,
				Start: start,
				End:   end,
				Lines: g,
			})
			start = end
		}
		offset += sceneDur
	}
	return cues, nil
}

// Render serializes cues to SRT text.
func Render(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n", cue.Index, timestamp(cue.Start), timestamp(cue.End))
		for _, line := range cue.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// wrap greedily word-wraps text to at most maxChars runes per line. A single
// word longer than maxChars occupies its own line unbroken.
func wrap(text string, maxChars int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len([]rune(current))+1+len([]rune(word)) <= maxChars {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}

func group(lines []string, size int) [][]string {
	var groups [][]string
	for len(lines) > size {
		groups = append(groups, lines[:size])
		lines = lines[size:]
	}
	return append(groups, lines)
}

// timestamp renders seconds as the SRT HH:MM:SS,mmm form.
func timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(math.Round(seconds * float64(time.Second)))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
