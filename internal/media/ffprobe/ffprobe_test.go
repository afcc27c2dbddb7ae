package ffprobe

import (
	"testing"
)

func TestParseSeconds(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"12.345", 12.345},
		{"", 0},
		{"garbage", 0},
		{"-3", 0},
		{" 4.5 ", 4.5},
	}
	for _, tc := range cases {
		if got := parseSeconds(tc.in); got != tc.want {
			t.Errorf("parseSeconds(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio", Duration: "7.5"},
		},
		Format: Format{Duration: "7.6"},
	}
	if got := result.DurationSeconds(); got != 7.6 {
		t.Errorf("DurationSeconds = %v", got)
	}
	if got := result.VideoStreamCount(); got != 1 {
		t.Errorf("VideoStreamCount = %d", got)
	}
}
