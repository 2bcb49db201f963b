package detector

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Language represents a header language the resolver can assign
type Language string

const (
	LanguageC       Language = "C"
	LanguageCPP     Language = "C++"
	LanguageObjC    Language = "Objective-C"
	LanguageObjCPP  Language = "Objective-C++"
	LanguageUnknown Language = "Unknown"
)

// Languages lists every classifiable language in evaluation order.
// Ties between equal averages are broken in favour of the earlier entry.
var Languages = []Language{LanguageC, LanguageCPP, LanguageObjC, LanguageObjCPP}

// ErrUnknownLanguage is returned when a rule names a language outside the closed set.
var ErrUnknownLanguage = errors.New("unknown language")

var languageAliases = map[string]Language{
	"c":             LanguageC,
	"c++":           LanguageCPP,
	"cpp":           LanguageCPP,
	"cxx":           LanguageCPP,
	"objc":          LanguageObjC,
	"obj-c":         LanguageObjC,
	"objective-c":   LanguageObjC,
	"objc++":        LanguageObjCPP,
	"obj-c++":       LanguageObjCPP,
	"objcpp":        LanguageObjCPP,
	"objective-c++": LanguageObjCPP,
}

// ParseLanguage resolves a language name or one of its common aliases.
func ParseLanguage(name string) (Language, error) {
	if lang, ok := languageAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return lang, nil
	}
	return LanguageUnknown, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
}

// Valid reports whether l is one of the classifiable languages.
func (l Language) Valid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}

// DefaultLanguageFor returns the language an editor would assign to a freshly
// opened file before any content-based resolution runs.
func DefaultLanguageFor(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h", ".c":
		return LanguageC
	case ".hpp", ".hh", ".hxx", ".cpp", ".cc", ".cxx":
		return LanguageCPP
	case ".m":
		return LanguageObjC
	case ".mm":
		return LanguageObjCPP
	}
	return LanguageUnknown
}
