package synth

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/muesli/gitcha"
)

// ErrNoMaterial is returned when a directory holds nothing to play.
var ErrNoMaterial = errors.New("no text or markdown files found")

// MaterialPatterns are the files Resolve looks for in a directory.
var MaterialPatterns = []string{
	"*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown", "*.txt",
}

// readmeNames are preferred, in this order, when a directory holds more
// than one text.
var readmeNames = []string{"readme.md", "readme.txt", "readme"}

// Resolve returns what to play for path. Files and segment directories are
// returned as they are. For any other directory the shallowest material
// file is picked, a README first, skipping files ignored by git.
func Resolve(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() || IsSegmentDir(path) {
		return path, nil
	}

	ch, err := gitcha.FindFilesExcept(path, MaterialPatterns, nil)
	if err != nil {
		return "", err
	}

	var found []string
	for res := range ch {
		// A segment directory's own sentences.txt is not material.
		if filepath.Base(res.Path) == SentencesFile {
			continue
		}
		found = append(found, res.Path)
	}
	if len(found) == 0 {
		return "", ErrNoMaterial
	}

	slices.SortFunc(found, func(a, b string) int {
		if d := depth(a) - depth(b); d != 0 {
			return d
		}
		if d := readmeRank(a) - readmeRank(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return found[0], nil
}

func depth(p string) int {
	return strings.Count(filepath.ToSlash(p), "/")
}

func readmeRank(p string) int {
	if i := slices.Index(readmeNames, strings.ToLower(filepath.Base(p))); i >= 0 {
		return i
	}
	return len(readmeNames)
}
