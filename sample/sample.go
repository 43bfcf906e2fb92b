// Package sample resolves the experiment directory layout shared by every
// command: an experiment holds sample?? directories, each with a
// parameters/metadata.txt sidecar, registration outputs, and segmentation
// images.
package sample

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/grailbio/base/errors"
)

// DefaultPattern matches the conventional sample directory names.
const DefaultPattern = "sample??"

// Dir identifies one sample directory.
type Dir struct {
	// Name is the directory basename, e.g. "sample01".
	Name string
	// Path is the directory's path as resolved (absolute only if the input
	// was).
	Path string
}

// MetadataPath returns the conventional sidecar location.
func (d Dir) MetadataPath() string {
	return filepath.Join(d.Path, "parameters", "metadata.txt")
}

// Join returns a path under the sample directory.
func (d Dir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.Path}, elem...)...)
}

// GlobOne resolves a glob pattern relative to the sample directory and
// requires exactly one match.  Zero matches is errors.NotExist (the caller
// skips the sample); more than one is errors.Invalid.
func (d Dir) GlobOne(pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(d.Path, pattern))
	if err != nil {
		return "", errors.E(errors.Invalid, err, "bad glob:", pattern)
	}
	switch len(matches) {
	case 0:
		return "", errors.E(errors.NotExist, "no match for", pattern, "in", d.Path)
	case 1:
		return matches[0], nil
	default:
		return "", errors.E(errors.Invalid, "multiple matches for", pattern, "in", d.Path)
	}
}

// Resolve selects the sample directories to process.  Precedence follows the
// original scripts: an explicit dir list wins; otherwise pattern is globbed
// in each experiment path (or the working directory when none are given).
// The result is sorted by path and deduplicated.  Resolving to nothing is an
// errors.NotExist error.
func Resolve(dirs []string, pattern string, expPaths []string) ([]Dir, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	var paths []string
	switch {
	case len(dirs) > 0:
		for _, d := range dirs {
			info, err := os.Stat(d)
			if err != nil {
				return nil, errors.E(errors.NotExist, "sample dir:", d)
			}
			if !info.IsDir() {
				return nil, errors.E(errors.Invalid, "not a directory:", d)
			}
			paths = append(paths, d)
		}
	default:
		roots := expPaths
		if len(roots) == 0 {
			roots = []string{"."}
		}
		for _, root := range roots {
			matches, err := filepath.Glob(filepath.Join(root, pattern))
			if err != nil {
				return nil, errors.E(errors.Invalid, err, "bad sample pattern:", pattern)
			}
			for _, m := range matches {
				if info, err := os.Stat(m); err == nil && info.IsDir() {
					paths = append(paths, m)
				}
			}
		}
	}
	sort.Strings(paths)
	var out []Dir
	seen := map[string]bool{}
	for _, p := range paths {
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, Dir{Name: filepath.Base(p), Path: p})
	}
	if len(out) == 0 {
		return nil, errors.E(errors.NotExist, "no sample directories matched pattern", pattern)
	}
	return out, nil
}
