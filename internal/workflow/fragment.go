package workflow

// FragmentKind tags the three template fragment variants.
type FragmentKind string

const (
	FragmentPipeline FragmentKind = "pipeline"
	FragmentJob      FragmentKind = "job"
	FragmentStep     FragmentKind = "step"
)

// Fragment is a read-only template snippet sourced from the template store.
// The engine never mutates a Fragment; placeholder filling produces copies.
type Fragment struct {
	ID                string
	Name              string
	Description       string
	Kind              FragmentKind
	Category          string   // tool identifier: polaris, coverity, blackduck_sca, ...
	Body              string   // raw template text
	Languages         []string // compatible languages, empty = language-agnostic
	RequiredSecrets   []string
	RequiredVariables []string
	Priority          int // higher ranks first among equally specific fragments
}

// CompatibleWith reports whether the fragment applies to the given language.
// A fragment without language metadata is compatible with everything.
func (f Fragment) CompatibleWith(language string) bool {
	if len(f.Languages) == 0 || language == "" || language == "unknown" {
		return true
	}
	for _, l := range f.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// matchesKind reports whether the fragment kind fits the insertion tier. This
// is a hard filter: a step fragment is never valid outside append_step.
func (f Fragment) matchesKind(kind InsertionKind) bool {
	switch kind {
	case InsertNewPipeline:
		return f.Kind == FragmentPipeline
	case InsertAppendJob:
		return f.Kind == FragmentJob
	case InsertAppendStep:
		return f.Kind == FragmentStep
	default:
		return false
	}
}
