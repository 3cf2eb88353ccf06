package workflow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MergeError reports a fragment that cannot be applied: a kind mismatch with
// the insertion point, a fragment that is not valid YAML, or an anchor that
// no longer exists in the document.
type MergeError struct {
	Msg string
}

func (e *MergeError) Error() string { return e.Msg }

func mergeErrorf(format string, args ...interface{}) error {
	return &MergeError{Msg: fmt.Sprintf(format, args...)}
}

// Merge splices a template fragment into a document at the resolved insertion
// point. The original document is never mutated; all bytes outside the
// inserted region are preserved verbatim and the fragment is re-indented to
// its insertion context. Merging the same triple twice yields byte-identical
// output. For InsertNewPipeline doc may be nil.
func Merge(doc *Document, frag Fragment, point InsertionPoint) (*Document, Diff, error) {
	if !frag.matchesKind(point.Kind) {
		return nil, Diff{}, mergeErrorf("fragment kind %q cannot be applied at insertion kind %q", frag.Kind, point.Kind)
	}

	var probe yaml.Node
	if err := yaml.Unmarshal([]byte(frag.Body), &probe); err != nil {
		return nil, Diff{}, mergeErrorf("fragment %q is not valid YAML: %v", frag.Name, err)
	}

	switch point.Kind {
	case InsertNewPipeline:
		return mergeNewPipeline(doc, frag)
	case InsertAppendJob:
		return mergeAppendJob(doc, frag, point)
	case InsertAppendStep:
		return mergeAppendStep(doc, frag, point)
	default:
		return nil, Diff{}, mergeErrorf("insertion kind %q is not mergeable", point.Kind)
	}
}

func mergeNewPipeline(doc *Document, frag Fragment) (*Document, Diff, error) {
	path := ""
	if doc != nil {
		path = doc.Path
	}
	raw := frag.Body
	if !strings.HasSuffix(raw, "\n") {
		raw += "\n"
	}

	merged, err := Parse(path, raw)
	if err != nil {
		return nil, Diff{}, mergeErrorf("fragment %q is not a valid pipeline: %v", frag.Name, err)
	}

	added := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	return merged, buildInsertionDiff(nil, added, 0), nil
}

func mergeAppendJob(doc *Document, frag Fragment, point InsertionPoint) (*Document, Diff, error) {
	if doc == nil || len(doc.Jobs) == 0 {
		return nil, Diff{}, mergeErrorf("cannot append job: document has no jobs section")
	}

	anchor := &doc.Jobs[len(doc.Jobs)-1]
	if point.AfterJob != "" {
		if anchor = doc.job(point.AfterJob); anchor == nil {
			return nil, Diff{}, mergeErrorf("anchor job %q not found in %s", point.AfterJob, doc.Path)
		}
	}

	block := reindentBlock(frag.Body, doc.jobIndent)
	at := anchor.EndLine
	if at > 0 && strings.TrimSpace(doc.Lines[at-1]) != "" {
		block = append([]string{""}, block...)
	}
	return splice(doc, block, at)
}

func mergeAppendStep(doc *Document, frag Fragment, point InsertionPoint) (*Document, Diff, error) {
	if doc == nil {
		return nil, Diff{}, mergeErrorf("cannot append step: no document")
	}
	job := doc.job(point.TargetJob)
	if job == nil {
		return nil, Diff{}, mergeErrorf("target job %q not found in %s", point.TargetJob, doc.Path)
	}
	if job.stepsLine == 0 {
		return nil, Diff{}, mergeErrorf("job %q has no steps block", job.ID)
	}

	at := job.stepsEnd
	if point.AfterStep != "" {
		for i := range job.Steps {
			if job.Steps[i].Name == point.AfterStep {
				at = job.Steps[i].EndLine
				break
			}
		}
	}

	block := reindentStep(frag.Body, job.stepIndent)
	return splice(doc, block, at)
}

// splice inserts block after 1-based line `at` and re-parses the result so
// the returned Document carries consistent spans — and so an insertion that
// would corrupt the file is caught here instead of surfacing downstream.
func splice(doc *Document, block []string, at int) (*Document, Diff, error) {
	merged := make([]string, 0, len(doc.Lines)+len(block))
	merged = append(merged, doc.Lines[:at]...)
	merged = append(merged, block...)
	merged = append(merged, doc.Lines[at:]...)

	out, err := Parse(doc.Path, strings.Join(merged, "\n"))
	if err != nil {
		return nil, Diff{}, mergeErrorf("insertion produced an invalid document: %v", err)
	}
	return out, buildInsertionDiff(doc.Lines, block, at), nil
}

// reindentBlock strips the fragment's own leading indentation and re-indents
// every non-blank line to the given column. Relative indentation inside the
// fragment is preserved.
func reindentBlock(body string, indent int) []string {
	lines := normalizeFragment(body)
	pad := strings.Repeat(" ", indent)
	out := make([]string, len(lines))
	for i, line := range lines {
		if line == "" {
			continue
		}
		out[i] = pad + line
	}
	return out
}

// reindentStep re-indents a step fragment to the job's step-item column,
// adding the sequence marker when the template body omits it.
func reindentStep(body string, indent int) []string {
	lines := normalizeFragment(body)
	if len(lines) > 0 && !strings.HasPrefix(lines[0], "- ") && lines[0] != "-" {
		lines[0] = "- " + lines[0]
		for i := 1; i < len(lines); i++ {
			if lines[i] != "" {
				lines[i] = "  " + lines[i]
			}
		}
	}
	pad := strings.Repeat(" ", indent)
	out := make([]string, len(lines))
	for i, line := range lines {
		if line == "" {
			continue
		}
		out[i] = pad + line
	}
	return out
}

// normalizeFragment splits a fragment body into lines with its common leading
// indentation removed and leading/trailing blank lines dropped.
func normalizeFragment(body string) []string {
	lines := strings.Split(strings.TrimRight(body, " \t\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}

	base := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lead := len(line) - len(strings.TrimLeft(line, " "))
		if base < 0 || lead < base {
			base = lead
		}
	}
	if base < 0 {
		base = 0
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = ""
			continue
		}
		out[i] = line[base:]
	}
	return out
}
