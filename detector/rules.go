package detector

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
)

// Syntax selects the regular expression engine a rule pattern is compiled with.
type Syntax string

const (
	// SyntaxRE2 compiles with the standard library engine (linear time). Default.
	SyntaxRE2 Syntax = "re2"
	// SyntaxPCRE compiles with a backtracking engine for lookaround and
	// backreferences, bounded by pcreMatchTimeout.
	SyntaxPCRE Syntax = "pcre"
)

const pcreMatchTimeout = 250 * time.Millisecond

// Sentinel errors describing why a rule was made inert.
var (
	ErrNoLanguages    = errors.New("rule cites no languages")
	ErrInvalidWeight  = errors.New("rule weight outside [0, 1]")
	ErrInvalidSyntax  = errors.New("unsupported pattern syntax")
	ErrInvalidPattern = errors.New("pattern failed to compile")
)

// RuleSpec is the declarative form of a rule as read from a rule document.
type RuleSpec struct {
	Name      string   `yaml:"name" toml:"name" json:"name"`
	Languages []string `yaml:"languages" toml:"languages" json:"languages"`
	Weight    float64  `yaml:"weight" toml:"weight" json:"weight"`
	Pattern   string   `yaml:"pattern" toml:"pattern" json:"pattern"`
	Syntax    Syntax   `yaml:"syntax,omitempty" toml:"syntax,omitempty" json:"syntax,omitempty"`
}

type matcher interface {
	match(text string) bool
}

type re2Matcher struct{ re *regexp.Regexp }

func (m re2Matcher) match(text string) bool { return m.re.MatchString(text) }

type pcreMatcher struct{ re *regexp2.Regexp }

// A timeout counts as "no match"; the rule simply contributes no evidence.
func (m pcreMatcher) match(text string) bool {
	ok, err := m.re.MatchString(text)
	return err == nil && ok
}

// Rule is one compiled piece of evidence. A rule whose pattern failed to
// compile is inert: it still cites its languages but never matches. A rule
// whose record was malformed otherwise cites nothing at all.
type Rule struct {
	Name      string
	Languages []Language
	Weight    float64
	Pattern   string
	Syntax    Syntax

	matcher matcher
}

// Inert reports whether the rule was disabled during Build.
func (r Rule) Inert() bool {
	return r.matcher == nil
}

// Matches reports whether the pattern occurs anywhere in text.
func (r Rule) Matches(text string) bool {
	if r.matcher == nil {
		return false
	}
	return r.matcher.match(text)
}

// Cites reports whether the rule counts as evidence for lang.
func (r Rule) Cites(lang Language) bool {
	return slices.Contains(r.Languages, lang)
}

// RuleDiagnostic explains why one rule of a table is inert.
type RuleDiagnostic struct {
	Index   int
	Name    string
	Pattern string
	Err     error
}

func (d RuleDiagnostic) Error() string {
	return fmt.Sprintf("rule[%d] %q: %v", d.Index, d.Name, d.Err)
}

func (d RuleDiagnostic) Unwrap() error {
	return d.Err
}

// RuleLogger receives build-time diagnostics. *logger.DomainLogger satisfies it.
type RuleLogger interface {
	RuleCompileFailed(index int, name, pattern string, err error)
}

// tableGenerations hands every Build a distinct id so cached verdicts never
// outlive the table they were computed against.
var tableGenerations atomic.Uint64

// RuleTable owns an ordered, immutable set of compiled rules.
// Build and Release must not run concurrently with readers.
type RuleTable struct {
	specs       []RuleSpec
	rules       []Rule
	diagnostics []RuleDiagnostic
	generation  uint64
	built       bool
	logger      RuleLogger
}

// NewRuleTable creates an unbuilt table over specs. logger may be nil.
func NewRuleTable(specs []RuleSpec, logger RuleLogger) *RuleTable {
	return &RuleTable{
		specs:  slices.Clone(specs),
		logger: logger,
	}
}

// Build compiles every rule. Invalid records become inert rules and are
// returned as diagnostics; Build itself never fails. Calling Build again
// recompiles from the original records.
func (t *RuleTable) Build() []RuleDiagnostic {
	t.Release()

	t.rules = make([]Rule, 0, len(t.specs))
	t.diagnostics = nil
	for i, spec := range t.specs {
		rule, err := compileRule(spec)
		if err != nil {
			diag := RuleDiagnostic{Index: i, Name: spec.Name, Pattern: spec.Pattern, Err: err}
			t.diagnostics = append(t.diagnostics, diag)
			if t.logger != nil {
				t.logger.RuleCompileFailed(i, spec.Name, spec.Pattern, err)
			}
		}
		t.rules = append(t.rules, rule)
	}

	t.generation = tableGenerations.Add(1)
	t.built = true
	return slices.Clone(t.diagnostics)
}

// Rules returns a copy of the compiled rules in table order. It is empty
// before Build and after Release.
func (t *RuleTable) Rules() []Rule {
	if t == nil || !t.built {
		return nil
	}
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		r.Languages = slices.Clone(r.Languages)
		out[i] = r
	}
	return out
}

// Diagnostics returns the inert-rule diagnostics of the last Build.
func (t *RuleTable) Diagnostics() []RuleDiagnostic {
	if t == nil {
		return nil
	}
	return slices.Clone(t.diagnostics)
}

// Built reports whether the table currently holds compiled rules.
func (t *RuleTable) Built() bool {
	return t != nil && t.built
}

// Generation identifies the last Build of this table; zero when unbuilt.
func (t *RuleTable) Generation() uint64 {
	if t == nil || !t.built {
		return 0
	}
	return t.generation
}

// Len returns the number of rule records, including inert ones.
func (t *RuleTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.specs)
}

// Release drops compiled patterns. It is safe to call repeatedly and before Build.
func (t *RuleTable) Release() {
	if t == nil || !t.built {
		return
	}
	for i := range t.rules {
		t.rules[i].matcher = nil
	}
	t.rules = nil
	t.generation = 0
	t.built = false
}

func compileRule(spec RuleSpec) (Rule, error) {
	rule := Rule{
		Name:    spec.Name,
		Weight:  spec.Weight,
		Pattern: spec.Pattern,
		Syntax:  spec.Syntax,
	}
	if rule.Syntax == "" {
		rule.Syntax = SyntaxRE2
	}

	for _, name := range spec.Languages {
		lang, err := ParseLanguage(name)
		if err != nil {
			rule.Languages = nil
			return rule, err
		}
		if !slices.Contains(rule.Languages, lang) {
			rule.Languages = append(rule.Languages, lang)
		}
	}
	if len(rule.Languages) == 0 {
		return rule, ErrNoLanguages
	}
	// NaN fails both comparisons and is rejected here
	if !(spec.Weight >= 0 && spec.Weight <= 1) {
		rule.Languages = nil
		return rule, fmt.Errorf("%w: %v", ErrInvalidWeight, spec.Weight)
	}

	switch rule.Syntax {
	case SyntaxRE2:
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return rule, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		rule.matcher = re2Matcher{re: re}
	case SyntaxPCRE:
		re, err := regexp2.Compile(spec.Pattern, regexp2.None)
		if err != nil {
			return rule, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		re.MatchTimeout = pcreMatchTimeout
		rule.matcher = pcreMatcher{re: re}
	default:
		return rule, fmt.Errorf("%w: %q", ErrInvalidSyntax, rule.Syntax)
	}

	return rule, nil
}
