package detector

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// EligibilityFilter decides which documents are header candidates at all.
// A file qualifies when its base name ends with one of Suffixes or has no
// extension, and it matches none of the Exclude globs.
type EligibilityFilter struct {
	Suffixes []string
	Exclude  []string
}

// DefaultEligibilityFilter returns the reference policy: .h or no extension.
func DefaultEligibilityFilter() EligibilityFilter {
	return EligibilityFilter{Suffixes: append([]string(nil), headerSuffixes...)}
}

// Eligible reports whether the file at p should be classified.
func (f EligibilityFilter) Eligible(p string) bool {
	normalized := filepath.ToSlash(p)
	base := path.Base(normalized)
	if base == "" || base == "." || base == "/" {
		return false
	}

	for _, pattern := range f.Exclude {
		matched, err := doublestar.Match(pattern, normalized)
		if err != nil {
			// Invalid pattern - skip it
			continue
		}
		if matched {
			return false
		}
	}

	if !strings.Contains(base, ".") {
		return true
	}
	for _, suffix := range f.Suffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
