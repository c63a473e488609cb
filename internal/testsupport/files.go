package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleSRT is a short two-cue subtitle document.
const SampleSRT = `1
00:00:00,000 --> 00:00:04,500
Photosynthesis converts light energy into chemical energy.

2
00:00:04,500 --> 00:00:09,000
It takes place in the chloroplasts of plant cells.
`

// WriteFile writes contents to path, creating parent directories.
func WriteFile(t testing.TB, path, contents string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
