package synth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("Some text."), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"readme first", []string{"b.md", "README.md", "a.txt"}, "README.md"},
		{"alphabetical", []string{"notes.txt", "lesson.md"}, "lesson.md"},
		{"shallow first", []string{"deep/aaa.md", "zzz.txt"}, "zzz.txt"},
		{"ignores other files", []string{"image.png", "sub/story.markdown"}, filepath.Join("sub", "story.markdown")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.files...)

			got, err := Resolve(dir)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if want := filepath.Join(dir, tt.want); got != want {
				t.Errorf("Resolve = %q, want %q", got, want)
			}
		})
	}
}

func TestResolvePassThrough(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "lesson.txt")
	file := filepath.Join(dir, "lesson.txt")

	if got, err := Resolve(file); err != nil || got != file {
		t.Errorf("Resolve(file) = %q, %v", got, err)
	}

	segDir := writeSegmentDir(t, "One.\nTwo.\n", map[string]time.Duration{
		"1.wav": 100 * time.Millisecond,
		"2.wav": 100 * time.Millisecond,
	})
	if got, err := Resolve(segDir); err != nil || got != segDir {
		t.Errorf("Resolve(segment dir) = %q, %v", got, err)
	}
}

func TestResolveEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "image.png")

	if _, err := Resolve(dir); !errors.Is(err, ErrNoMaterial) {
		t.Errorf("Resolve = %v, want ErrNoMaterial", err)
	}
	if _, err := Resolve(filepath.Join(dir, "missing")); err == nil {
		t.Error("Resolve of a missing path should fail")
	}
}
