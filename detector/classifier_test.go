package detector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTable(t *testing.T, specs ...RuleSpec) *RuleTable {
	t.Helper()
	table := NewRuleTable(specs, nil)
	table.Build()
	t.Cleanup(table.Release)
	return table
}

func referenceTable(t *testing.T) *RuleTable {
	t.Helper()
	return buildTable(t, ReferenceRuleSpecs()...)
}

func TestClassifyReferenceScenarios(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		expected    Language
		average     float64
		matched     []string
		description string
	}{
		{
			name:        "Template class with extensionless include",
			text:        "template<int N> class Foo {};\n#include <vector>\n",
			expected:    LanguageCPP,
			average:     2.4 / 4,
			matched:     []string{"class-keyword", "extensionless-include", "template-declaration"},
			description: "C++ and Objective-C++ share the evidence but C++ is cited by fewer rules",
		},
		{
			name:        "Interface with Foundation import",
			text:        "@interface Foo : NSObject @end\n#import <Foundation.h>\n",
			expected:    LanguageObjC,
			average:     1.3 / 5,
			matched:     []string{"foundation-import", "objc-directive"},
			description: "Directive and Foundation import are shared, Objective-C has the smaller total",
		},
		{
			name:        "Foundation import below a framework directory",
			text:        "#import <Foundation/Foundation.h>\n@interface Foo : NSObject\n@end\n",
			expected:    LanguageObjC,
			average:     1.3 / 5,
			matched:     []string{"foundation-import", "objc-directive"},
			description: "Directory components before the framework header are allowed",
		},
		{
			name:        "Cocoa include",
			text:        "#include \"Cocoa.h\"\n",
			expected:    LanguageObjC,
			average:     0.5 / 5,
			matched:     []string{"cocoa-import"},
			description: "The include form of the framework rule counts as well",
		},
		{
			name:        "C modeline",
			text:        "/* -*- c -*- */\nint add(int a, int b);\n",
			expected:    LanguageC,
			average:     1.0 / 2,
			matched:     []string{"modeline-c"},
			description: "An explicit modeline is the strongest single signal",
		},
		{
			name:        "Objective-C++ modeline",
			text:        "// -*- objc++ -*-\n",
			expected:    LanguageObjCPP,
			average:     1.0 / 7,
			matched:     []string{"modeline-objcxx"},
			description: "The Objective-C++ modeline accumulates into Objective-C++",
		},
		{
			name:        "Empty text",
			text:        "",
			expected:    LanguageUnknown,
			description: "Nothing matches so the current language is kept",
		},
		{
			name:        "Plain declarations",
			text:        "int add(int a, int b);\n#include <stdio.h>\n",
			expected:    LanguageUnknown,
			description: "A dotted include is not evidence of anything",
		},
	}

	table := referenceTable(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Classify(tt.text, table)
			assert.Equal(t, tt.expected, verdict.Language, tt.description)
			assert.InDelta(t, tt.average, verdict.Average, 1e-9, tt.description)
			assert.Equal(t, tt.matched, verdict.Matched, tt.description)
		})
	}
}

func TestClassifyReferenceTotals(t *testing.T) {
	verdict := Classify("", referenceTable(t))

	assert.Equal(t, map[Language]Score{
		LanguageC:      {Total: 2},
		LanguageCPP:    {Total: 4},
		LanguageObjC:   {Total: 5},
		LanguageObjCPP: {Total: 7},
	}, verdict.Scores)
	assert.True(t, verdict.NoChange())
}

func TestClassifySharedRule(t *testing.T) {
	table := buildTable(t, RuleSpec{
		Name:      "shared",
		Languages: []string{"objc++", "c++"},
		Weight:    0.7,
		Pattern:   `shared`,
	})

	verdict := Classify("a shared signal", table)

	cpp, _ := verdict.Scores[LanguageCPP].Average()
	objcpp, _ := verdict.Scores[LanguageObjCPP].Average()
	assert.Equal(t, cpp, objcpp, "both cited languages must gain identically")
	assert.Equal(t, LanguageCPP, verdict.Language, "C++ precedes Objective-C++ in evaluation order")
	assert.InDelta(t, 0.7, verdict.Average, 1e-9)
}

func TestClassifyTieBreak(t *testing.T) {
	tests := []struct {
		name     string
		first    string
		second   string
		expected Language
	}{
		{name: "C before C++", first: "c++", second: "c", expected: LanguageC},
		{name: "C++ before Objective-C", first: "objc", second: "c++", expected: LanguageCPP},
		{name: "Objective-C before Objective-C++", first: "objc++", second: "objc", expected: LanguageObjC},
		{name: "C before Objective-C++", first: "objc++", second: "c", expected: LanguageC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := buildTable(t,
				RuleSpec{Name: "first", Languages: []string{tt.first}, Weight: 0.5, Pattern: `alpha`},
				RuleSpec{Name: "second", Languages: []string{tt.second}, Weight: 0.5, Pattern: `beta`},
			)

			verdict := Classify("alpha beta", table)
			assert.Equal(t, tt.expected, verdict.Language)
			assert.InDelta(t, 0.5, verdict.Average, 1e-9)
		})
	}
}

func TestClassifyNoMatchesIsNoChange(t *testing.T) {
	tests := []struct {
		name  string
		table *RuleTable
	}{
		{name: "nil table", table: nil},
		{name: "unbuilt table", table: NewRuleTable(ReferenceRuleSpecs(), nil)},
		{name: "empty table", table: buildTable(t)},
		{name: "reference table", table: referenceTable(t)},
		{
			name: "zero weight match",
			table: buildTable(t, RuleSpec{
				Name: "weightless", Languages: []string{"c"}, Weight: 0, Pattern: `nothing to see`,
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Classify("nothing to see here", tt.table)
			assert.True(t, verdict.NoChange())
			assert.Equal(t, LanguageUnknown, verdict.Language)
			assert.Zero(t, verdict.Average)
		})
	}
}

func TestClassifyUncitedLanguageNeverWins(t *testing.T) {
	table := buildTable(t,
		RuleSpec{Name: "weak", Languages: []string{"objc++"}, Weight: 0.1, Pattern: `x`},
	)

	verdict := Classify("x", table)

	assert.Equal(t, LanguageObjCPP, verdict.Language)
	for _, lang := range []Language{LanguageC, LanguageCPP, LanguageObjC} {
		_, ok := verdict.Scores[lang].Average()
		assert.False(t, ok, "%s is cited by no rule", lang)
	}
}

func TestClassifyOrderIndependence(t *testing.T) {
	texts := []string{
		"template<int N> class Foo {};\n#include <vector>\n",
		"@interface Foo : NSObject @end\n#import <Foundation.h>\n",
		"// -*- objc++ -*-\n#ifdef __cplusplus\n@property int x;\ntemplate <class T> struct S;\n",
		"#ifdef __cplusplus\nextern \"C\" {\n#endif\n",
	}

	specs := ReferenceRuleSpecs()
	baseline := buildTable(t, specs...)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 20; i++ {
		shuffled := append([]RuleSpec(nil), specs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		permuted := buildTable(t, shuffled...)

		for _, text := range texts {
			assert.Equal(t, Classify(text, baseline), Classify(text, permuted))
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	table := referenceTable(t)
	text := "@implementation Foo\n- (void)bar {}\n@end\n"

	first := Classify(text, table)
	second := Classify(text, table)
	assert.Equal(t, first, second)
}

func TestClassifyMalformedPatternResilience(t *testing.T) {
	specs := []RuleSpec{
		{Name: "c-signal", Languages: []string{"c"}, Weight: 0.6, Pattern: `foo`},
		{Name: "cxx-signal", Languages: []string{"c++"}, Weight: 1.0, Pattern: `foo`},
		{Name: "broken", Languages: []string{"c++"}, Weight: 1.0, Pattern: `foo(`},
	}

	table := NewRuleTable(specs, nil)
	diagnostics := table.Build()
	defer table.Release()
	require.Len(t, diagnostics, 1)
	assert.ErrorIs(t, diagnostics[0], ErrInvalidPattern)

	verdict := Classify("foo", table)

	// the broken rule still counts toward C++'s total
	assert.Equal(t, Score{Value: 1.0, Total: 2}, verdict.Scores[LanguageCPP])
	assert.Equal(t, LanguageC, verdict.Language)
	assert.Equal(t, []string{"c-signal", "cxx-signal"}, verdict.Matched)
}

func TestClassifyInvalidRecordCitesNothing(t *testing.T) {
	table := buildTable(t,
		RuleSpec{Name: "cxx", Languages: []string{"c++"}, Weight: 1.0, Pattern: `foo`},
		RuleSpec{Name: "unknown-language", Languages: []string{"c++", "pascal"}, Weight: 1.0, Pattern: `bar`},
		RuleSpec{Name: "heavy", Languages: []string{"c++"}, Weight: 2.0, Pattern: `bar`},
	)

	verdict := Classify("foo", table)

	assert.Equal(t, Score{Value: 1.0, Total: 1}, verdict.Scores[LanguageCPP])
	assert.Equal(t, LanguageCPP, verdict.Language)
	assert.InDelta(t, 1.0, verdict.Average, 1e-9)
}

func TestClassifyPCRERule(t *testing.T) {
	table := buildTable(t,
		RuleSpec{Name: "interface", Languages: []string{"objc"}, Weight: 0.9, Pattern: `(?<=@)interface\b`, Syntax: SyntaxPCRE},
		RuleSpec{Name: "plain", Languages: []string{"c"}, Weight: 0.5, Pattern: `interface`},
	)

	verdict := Classify("@interface Foo", table)
	assert.Equal(t, LanguageObjC, verdict.Language)

	verdict = Classify("struct interface;", table)
	assert.Equal(t, LanguageC, verdict.Language)
}

type recordingEvaluationLogger struct {
	evaluated []string
	summaries int
	verdict   Language
}

func (l *recordingEvaluationLogger) RuleEvaluated(name, _ string, _ bool) {
	l.evaluated = append(l.evaluated, name)
}

func (l *recordingEvaluationLogger) ClassificationSummary(_ map[Language]Score, verdict Language) {
	l.summaries++
	l.verdict = verdict
}

func TestClassifierTracesEveryRule(t *testing.T) {
	table := referenceTable(t)
	rec := &recordingEvaluationLogger{}

	verdict := NewClassifier(rec).Classify("template<int N> class Foo {};", table)

	require.Len(t, rec.evaluated, table.Len())
	assert.Equal(t, "modeline-c", rec.evaluated[0])
	assert.Equal(t, 1, rec.summaries)
	assert.Equal(t, verdict.Language, rec.verdict)
}

func TestNaNWeightDoesNotPoisonLanguage(t *testing.T) {
	specs, err := ParseRuleDocument([]byte(`
rules:
  - name: nan
    languages: [c++]
    weight: .nan
    pattern: 'x'
  - name: template
    languages: [c++]
    weight: 1.0
    pattern: 'template'
`), FormatYAML)
	require.NoError(t, err)

	table := NewRuleTable(specs, nil)
	diagnostics := table.Build()
	t.Cleanup(table.Release)
	require.Len(t, diagnostics, 1)
	assert.ErrorIs(t, diagnostics[0], ErrInvalidWeight)

	verdict := Classify("template x", table)
	assert.Equal(t, LanguageCPP, verdict.Language)
	assert.Equal(t, Score{Value: 1, Total: 1}, verdict.Scores[LanguageCPP])
	assert.InDelta(t, 1.0, verdict.Average, 1e-9)
}
