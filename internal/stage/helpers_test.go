package stage

import (
	"errors"
	"strings"
	"testing"

	"studyforge/internal/content"
	"studyforge/internal/services"
)

func TestReportClamps(t *testing.T) {
	var got []int
	p := func(percent int, _ string) { got = append(got, percent) }
	Report(p, -5, "")
	Report(p, 50, "")
	Report(p, 140, "")
	Report(nil, 10, "")
	if len(got) != 3 || got[0] != 0 || got[1] != 50 || got[2] != 100 {
		t.Fatalf("unexpected reports %v", got)
	}
}

func TestScaled(t *testing.T) {
	cases := []struct {
		from, to, done, total, want int
	}{
		{10, 90, 0, 4, 10},
		{10, 90, 2, 4, 50},
		{10, 90, 4, 4, 90},
		{10, 90, 9, 4, 90},
		{10, 90, 0, 0, 90},
	}
	for _, tc := range cases {
		if got := Scaled(tc.from, tc.to, tc.done, tc.total); got != tc.want {
			t.Fatalf("Scaled(%d,%d,%d,%d) = %d, want %d", tc.from, tc.to, tc.done, tc.total, got, tc.want)
		}
	}
}

func TestMissingArtifact(t *testing.T) {
	err := MissingArtifact(content.StageSummarization, "transcript", content.StageTranscription)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "resume from transcription") {
		t.Fatalf("expected resume hint, got %q", err)
	}
}
