package detector

import (
	_ "embed"
	"fmt"
)

// ReferenceSource names the embedded reference rule document.
const ReferenceSource = "builtin:reference"

//go:embed presets/reference.yaml
var referenceRules []byte

// ReferenceRuleSpecs returns the embedded reference rule set.
func ReferenceRuleSpecs() []RuleSpec {
	specs, err := ParseRuleDocument(referenceRules, FormatYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded reference rules are invalid: %v", err))
	}
	return specs
}

// headerSuffixes is the reference eligibility policy: headers end in .h or
// have no extension at all.
var headerSuffixes = []string{".h"}
