package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultPipelinePath is where a new scanning pipeline is created when the
// repository has no usable pipeline to enhance.
const DefaultPipelinePath = ".github/workflows/security-scan.yml"

// prRapidScanExpr switches static analysis to rapid mode on pull request
// events while keeping full scans for pushes.
const prRapidScanExpr = `${{ (github.event_name == 'pull_request' && contains(fromJSON('["opened","synchronize","reopened"]'), github.event.action)) && 'SAST_RAPID' || '' }}`

// WorkflowFile pairs a pipeline file path with its raw content, as fetched by
// the hosting-API collaborator.
type WorkflowFile struct {
	Path    string
	Content string
}

// RepositoryInput is everything the assembler needs for one repository. All
// of it is supplied by callers; the assembler itself performs no I/O.
type RepositoryInput struct {
	Repository string
	Workflows  []WorkflowFile
	FilePaths  []string
	Fragments  []Fragment
}

// Recommendation pairs one fragment with one insertion point and the
// assessment decision, plus a human-readable rationale. Recommendations are
// created fresh per analysis and never persisted here.
type Recommendation struct {
	ID              string         `json:"id"`
	Repository      string         `json:"repository"`
	FragmentID      string         `json:"fragment_id"`
	FragmentName    string         `json:"fragment_name"`
	FragmentKind    FragmentKind   `json:"fragment_kind"`
	Category        string         `json:"category"`
	TargetPath      string         `json:"target_path"`
	Point           InsertionPoint `json:"insertion_point"`
	Decision        Decision       `json:"decision"`
	Reason          string         `json:"reason"`
	LanguageMatch   bool           `json:"language_match"`
	Priority        int            `json:"priority"`
	PROptimized     bool           `json:"pr_optimized"`
	RequiredSecrets []string       `json:"required_secrets,omitempty"`

	// Fragment carries the placeholder-filled fragment for lazy previews;
	// the merger runs only when a preview or apply is requested.
	Fragment Fragment `json:"-"`
}

// Preview merges the recommendation's fragment into the document it targets.
// Side-effect free and repeatable: identical inputs give identical output.
func (r Recommendation) Preview(doc *Document) (*Document, Diff, error) {
	return Merge(doc, r.Fragment, r.Point)
}

// Analysis is the per-repository result: the signals, the decision, the
// resolved insertion point and the ranked recommendations. A repository whose
// pipeline fails to parse is reported with Failed set instead of vanishing.
type Analysis struct {
	Repository      string                 `json:"repository"`
	Failed          bool                   `json:"failed"`
	FailureReason   string                 `json:"failure_reason,omitempty"`
	Signals         []PackageManagerSignal `json:"signals"`
	Decision        Decision               `json:"decision"`
	Point           InsertionPoint         `json:"insertion_point"`
	TargetPath      string                 `json:"target_path"`
	Recommendations []Recommendation       `json:"recommendations"`

	// Document is the parsed target pipeline, kept for previews. Nil when the
	// recommendation is a new pipeline file.
	Document *Document `json:"-"`
}

// Assemble runs the full pure analysis chain for one repository: signal
// detection, assessment, document selection, insertion resolution, fragment
// filtering and ranking. It never returns an error; parse failures are
// reported inside the Analysis.
func Assemble(in RepositoryInput) Analysis {
	analysis := Analysis{Repository: in.Repository}

	analysis.Signals = DetectSignals(in.FilePaths)
	analysis.Decision = Decide(analysis.Signals)

	docs := make([]*Document, 0, len(in.Workflows))
	for _, wf := range in.Workflows {
		doc, err := Parse(wf.Path, wf.Content)
		if err != nil {
			analysis.Failed = true
			analysis.FailureReason = fmt.Sprintf("pipeline %s failed to parse: %v", wf.Path, err)
			return analysis
		}
		docs = append(docs, doc)
	}

	target := selectDocument(docs)
	analysis.Document = target
	analysis.Point = Resolve(target, analysis.Decision)

	switch analysis.Point.Kind {
	case InsertNone:
		return analysis
	case InsertNewPipeline:
		analysis.TargetPath = DefaultPipelinePath
	default:
		analysis.TargetPath = target.Path
	}

	analysis.Recommendations = buildRecommendations(&analysis, in)
	return analysis
}

// selectDocument picks the pipeline to enhance: the one with the most build
// jobs, falling back to the first in listing order. Nil when the repository
// has no pipelines at all.
func selectDocument(docs []*Document) *Document {
	var best *Document
	bestCount := -1
	for _, doc := range docs {
		count := 0
		for _, job := range doc.Jobs {
			if job.HasBuildStep {
				count++
			}
		}
		if count > bestCount {
			best = doc
			bestCount = count
		}
	}
	return best
}

func buildRecommendations(analysis *Analysis, in RepositoryInput) []Recommendation {
	var recs []Recommendation
	seen := map[string]bool{}

	for _, frag := range in.Fragments {
		if !frag.matchesKind(analysis.Point.Kind) {
			continue
		}
		cats := fragmentCategories(frag)
		if !categoryApplies(analysis.Decision, cats) {
			continue
		}
		if analysis.Document != nil && alreadyScanned(analysis.Document, cats) {
			continue
		}
		if !frag.CompatibleWith(analysis.Decision.PrimaryLanguage) {
			continue
		}
		if seen[frag.ID] {
			continue
		}
		seen[frag.ID] = true

		prOptimized := analysis.Document != nil &&
			analysis.Document.HasPullRequestTrigger() &&
			analysis.Decision.StaticAnalysis

		filled := frag
		filled.Body = FillPlaceholders(frag.Body, analysis.Decision)

		recs = append(recs, Recommendation{
			ID:              fmt.Sprintf("%s/%s", in.Repository, frag.ID),
			Repository:      in.Repository,
			FragmentID:      frag.ID,
			FragmentName:    frag.Name,
			FragmentKind:    frag.Kind,
			Category:        frag.Category,
			TargetPath:      analysis.TargetPath,
			Point:           analysis.Point,
			Decision:        analysis.Decision,
			Reason:          recommendationReason(analysis, frag),
			LanguageMatch:   languageMatch(frag, analysis.Decision.PrimaryLanguage),
			Priority:        frag.Priority,
			PROptimized:     prOptimized,
			RequiredSecrets: frag.RequiredSecrets,
			Fragment:        filled,
		})
	}

	// Specificity ranking: language-matching fragments first, then declared
	// tool priority, then name for a stable order.
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].LanguageMatch != recs[j].LanguageMatch {
			return recs[i].LanguageMatch
		}
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority > recs[j].Priority
		}
		return recs[i].FragmentName < recs[j].FragmentName
	})
	return recs
}

func recommendationReason(analysis *Analysis, frag Fragment) string {
	switch analysis.Point.Kind {
	case InsertNewPipeline:
		return fmt.Sprintf("Create a %s pipeline running %s. %s", analysis.Decision.AssessmentTypes(), frag.Name, analysis.Decision.Reasoning)
	case InsertAppendJob:
		return fmt.Sprintf("Add a %s job to %s. %s", frag.Category, analysis.TargetPath, analysis.Point.Reason)
	default:
		return fmt.Sprintf("Add a %s step to job %q in %s. %s", frag.Category, analysis.Point.TargetJob, analysis.TargetPath, analysis.Point.Reason)
	}
}

// FillPlaceholders substitutes the {assessment_types} placeholder in a
// fragment body with the decision's scan categories.
func FillPlaceholders(body string, decision Decision) string {
	return strings.ReplaceAll(body, "{assessment_types}", decision.AssessmentTypes())
}

// PRRapidScanExpression returns the trigger-conditional expression templates
// reference to run faster static scans on pull requests.
func PRRapidScanExpression() string { return prRapidScanExpr }

var sastCategories = map[string]bool{"sast": true, "polaris": true, "coverity": true}
var scaCategories = map[string]bool{"sca": true, "blackduck_sca": true, "black_duck_sca": true, "polaris": true}

// categoryScanTool maps a fragment category to the scan tool its steps would
// register as, used to suppress duplicate recommendations.
var categoryScanTool = map[string]string{
	"polaris":        "polaris",
	"coverity":       "coverity",
	"blackduck_sca":  "blackduck",
	"black_duck_sca": "blackduck",
	"codeql":         "codeql",
	"snyk":           "snyk",
	"sonarqube":      "sonarqube",
}

func fragmentCategories(frag Fragment) []string {
	parts := strings.Split(frag.Category, ",")
	cats := make([]string, 0, len(parts))
	for _, p := range parts {
		if c := strings.ToLower(strings.TrimSpace(p)); c != "" {
			cats = append(cats, c)
		}
	}
	return cats
}

func categoryApplies(decision Decision, cats []string) bool {
	for _, cat := range cats {
		if decision.StaticAnalysis && sastCategories[cat] {
			return true
		}
		if decision.CompositionAnalysis && scaCategories[cat] {
			return true
		}
	}
	return false
}

// alreadyScanned reports whether the document already runs a scan tool of any
// of the fragment's categories. A job carrying that tool never receives a
// second recommendation for it.
func alreadyScanned(doc *Document, cats []string) bool {
	existing := doc.ScanTools()
	for _, cat := range cats {
		tool, ok := categoryScanTool[cat]
		if !ok {
			continue
		}
		if contains(existing, tool) {
			return true
		}
	}
	return false
}

func languageMatch(frag Fragment, language string) bool {
	if language == "" || language == "unknown" {
		return false
	}
	return contains(frag.Languages, language)
}
