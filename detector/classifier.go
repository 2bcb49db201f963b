package detector

import "slices"

// Score is the per-language evidence accumulated over one classification.
type Score struct {
	Value float64 `json:"value"`
	Total int     `json:"total"`
}

// Average returns Value/Total. ok is false when no rule cites the language,
// in which case the language has no opinion and cannot be selected.
func (s Score) Average() (avg float64, ok bool) {
	if s.Total == 0 {
		return 0, false
	}
	return s.Value / float64(s.Total), true
}

// Verdict is the outcome of a classification. Language is LanguageUnknown
// when nothing matched and the caller should keep its current assignment.
type Verdict struct {
	Language Language           `json:"language"`
	Average  float64            `json:"average"`
	Scores   map[Language]Score `json:"scores"`
	Matched  []string           `json:"matched,omitempty"`
}

// NoChange reports whether the verdict carries no opinion.
func (v Verdict) NoChange() bool {
	return v.Language == LanguageUnknown
}

// EvaluationLogger receives the advisory per-rule trace and per-language summary.
type EvaluationLogger interface {
	RuleEvaluated(name, pattern string, matched bool)
	ClassificationSummary(scores map[Language]Score, verdict Language)
}

// Classifier scores text against a rule table. The zero value is usable and
// silent; a Classifier holds no per-call state and is safe for concurrent use.
type Classifier struct {
	Logger EvaluationLogger
}

// NewClassifier returns a classifier that traces through logger (may be nil).
func NewClassifier(logger EvaluationLogger) *Classifier {
	return &Classifier{Logger: logger}
}

// Classify runs every rule of table once against text and selects the
// language with the strictly highest average confidence. Equal averages
// resolve to the earliest language in Languages. An unbuilt or empty table,
// or text that matches nothing, yields a NoChange verdict.
func (c *Classifier) Classify(text string, table *RuleTable) Verdict {
	scores := make(map[Language]Score, len(Languages))
	for _, lang := range Languages {
		scores[lang] = Score{}
	}

	// Matched weights are summed in sorted order so that permuting the table
	// cannot perturb a float tie.
	weights := make(map[Language][]float64, len(Languages))
	var matched []string
	for _, rule := range table.Rules() {
		hit := rule.Matches(text)
		if c != nil && c.Logger != nil {
			c.Logger.RuleEvaluated(rule.Name, rule.Pattern, hit)
		}
		if hit {
			matched = append(matched, rule.Name)
		}
		for _, lang := range rule.Languages {
			s := scores[lang]
			s.Total++
			scores[lang] = s
			if hit {
				weights[lang] = append(weights[lang], rule.Weight)
			}
		}
	}
	for lang, ws := range weights {
		slices.Sort(ws)
		s := scores[lang]
		for _, w := range ws {
			s.Value += w
		}
		scores[lang] = s
	}
	slices.Sort(matched)

	verdict := Verdict{Language: LanguageUnknown, Scores: scores, Matched: matched}
	for _, lang := range Languages {
		avg, ok := scores[lang].Average()
		if !ok {
			continue
		}
		if avg > verdict.Average {
			verdict.Average = avg
			verdict.Language = lang
		}
	}

	if c != nil && c.Logger != nil {
		c.Logger.ClassificationSummary(scores, verdict.Language)
	}
	return verdict
}

// Classify is a convenience for a silent classification.
func Classify(text string, table *RuleTable) Verdict {
	return (*Classifier)(nil).Classify(text, table)
}
