package workflow

import (
	"fmt"
	"strings"
)

// Decision records which scan categories apply to a repository. It is derived
// deterministically from the detected signals and never mutated afterwards.
type Decision struct {
	StaticAnalysis      bool   `json:"static_analysis"`
	CompositionAnalysis bool   `json:"composition_analysis"`
	LowConfidence       bool   `json:"low_confidence"`
	PrimaryLanguage     string `json:"primary_language"`
	Reasoning           string `json:"reasoning"`
}

// Decide maps a signal set onto scan categories. Any ecosystem that pulls
// third-party packages adds composition analysis; any source ecosystem adds
// static analysis. Ties resolve toward the more inclusive decision: a
// superfluous category beats a missing one. No signals at all falls back to
// static analysis only, flagged low confidence so callers surface the caveat.
func Decide(signals []PackageManagerSignal) Decision {
	if len(signals) == 0 {
		return Decision{
			StaticAnalysis:  true,
			LowConfidence:   true,
			PrimaryLanguage: "unknown",
			Reasoning:       "No package manager or language signals detected. Recommend static analysis for general source code coverage.",
		}
	}

	decision := Decision{
		StaticAnalysis:  true,
		PrimaryLanguage: "unknown",
	}
	if len(signals[0].Languages) > 0 {
		decision.PrimaryLanguage = signals[0].Languages[0]
	}

	var names, files []string
	for _, sig := range signals {
		if sig.DependencyRisk {
			decision.CompositionAnalysis = true
		}
		names = append(names, sig.Ecosystem)
		if len(sig.Files) > 0 {
			files = append(files, sig.Files[0])
		}
	}

	if decision.CompositionAnalysis {
		decision.Reasoning = fmt.Sprintf(
			"Package manager(s) detected (%s): %s. Recommend static analysis for source code and composition analysis for dependency vulnerabilities.",
			strings.Join(names, ", "), strings.Join(files, ", "))
	} else {
		decision.Reasoning = fmt.Sprintf(
			"Source ecosystem(s) detected (%s) without third-party dependency management. Recommend static analysis only.",
			strings.Join(names, ", "))
	}
	return decision
}

// AssessmentTypes renders the decision in the form scan tooling expects,
// e.g. "SAST", "SCA" or "SAST,SCA". Used to fill fragment placeholders.
func (d Decision) AssessmentTypes() string {
	switch {
	case d.StaticAnalysis && d.CompositionAnalysis:
		return "SAST,SCA"
	case d.CompositionAnalysis:
		return "SCA"
	default:
		return "SAST"
	}
}

func (d Decision) String() string {
	switch {
	case d.StaticAnalysis && d.CompositionAnalysis:
		return "both"
	case d.CompositionAnalysis:
		return "composition-analysis-only"
	default:
		return "static-analysis-only"
	}
}
