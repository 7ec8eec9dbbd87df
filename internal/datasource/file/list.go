package file

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shopetl/internal/datasource"
)

// ManifestPrefix marks an input that names a manifest file listing further
// inputs, one per line: "@inbox/today.txt".
const ManifestPrefix = "@"

// ReadList reads a text file line by line and returns a slice of strings
// containing non-empty, non-comment lines.
//
// Lines that are empty or start with '#' (after trimming leading/trailing
// whitespace) are skipped. The order of lines is preserved.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve expands input patterns into sources. Each pattern is a path, a
// glob, or a manifest ("@file") whose lines are themselves paths or globs
// relative to the manifest's directory. Matches are sorted per pattern and
// deduplicated across patterns, so a file named twice is read once.
func Resolve(patterns []string) ([]datasource.Source, error) {
	var out []datasource.Source
	seen := map[string]bool{}

	var expand func(pattern, base string, depth int) error
	expand = func(pattern, base string, depth int) error {
		if m, ok := strings.CutPrefix(pattern, ManifestPrefix); ok {
			if depth > 0 {
				return fmt.Errorf("manifest %s: nested manifests are not supported", m)
			}
			m = join(base, m)
			lines, err := ReadList(m)
			if err != nil {
				return fmt.Errorf("manifest %s: %w", m, err)
			}
			for _, l := range lines {
				if err := expand(l, filepath.Dir(m), depth+1); err != nil {
					return err
				}
			}
			return nil
		}

		pattern = join(base, pattern)
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("glob %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, p := range matches {
			if seen[p] {
				continue
			}
			if fi, err := os.Stat(p); err != nil || fi.IsDir() {
				continue
			}
			seen[p] = true
			out = append(out, NewLocal(p))
		}
		return nil
	}

	for _, p := range patterns {
		if err := expand(strings.TrimSpace(p), "", 0); err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}
	}
	return out, nil
}

func join(base, p string) string {
	if base == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
