package workflow

import "fmt"

// InsertionKind is the enhancement tier chosen for a document.
type InsertionKind string

const (
	// InsertNone means every job already carries a scan step; nothing to add.
	InsertNone InsertionKind = "none"
	// InsertNewPipeline means a new top-level pipeline file should be created.
	InsertNewPipeline InsertionKind = "new_pipeline"
	// InsertAppendJob means a new job is appended to an existing pipeline.
	InsertAppendJob InsertionKind = "append_job"
	// InsertAppendStep means a new step is appended inside an existing job.
	InsertAppendStep InsertionKind = "append_step"
)

// InsertionPoint names the tier and the precise anchor for an enhancement.
// Exactly one is produced per resolved document.
type InsertionPoint struct {
	Kind      InsertionKind `json:"kind"`
	TargetJob string        `json:"target_job,omitempty"` // append_step
	AfterStep string        `json:"after_step,omitempty"` // append_step, "" = end of job
	AfterJob  string        `json:"after_job,omitempty"`  // append_job, "" = end of document
	Reason    string        `json:"reason"`
}

// Resolve runs the three-tier state machine over a parsed document. Tiers are
// evaluated in fixed order, first match wins:
//
//  1. no jobs exist                          -> new pipeline file
//  2. no job both builds and lacks a scan    -> append a job
//  3. a job builds and has no scan           -> append a step to that job
//
// Jobs that already contain a scan step are excluded as targets outright, so
// re-running against an already-enhanced document cannot select them again.
// When several jobs qualify, the earliest in document order wins.
func Resolve(doc *Document, decision Decision) InsertionPoint {
	if doc == nil || len(doc.Jobs) == 0 {
		return InsertionPoint{
			Kind:   InsertNewPipeline,
			Reason: fmt.Sprintf("No pipeline jobs exist; create a dedicated %s scanning pipeline.", decision.AssessmentTypes()),
		}
	}

	var eligible []*Job
	for i := range doc.Jobs {
		if !doc.Jobs[i].HasScanStep {
			eligible = append(eligible, &doc.Jobs[i])
		}
	}
	if len(eligible) == 0 {
		return InsertionPoint{
			Kind:   InsertNone,
			Reason: "Every job already runs a security scan step.",
		}
	}

	// Tier 3 candidate: earliest eligible job with a build step.
	for _, job := range eligible {
		if job.HasBuildStep {
			point := InsertionPoint{
				Kind:      InsertAppendStep,
				TargetJob: job.ID,
				Reason:    fmt.Sprintf("Append a scan step to job %q after its build steps so compiled output is analyzed.", job.ID),
			}
			if step := lastBuildStep(job); step != nil {
				point.AfterStep = step.Name
			}
			return point
		}
	}

	// Tier 2: append a job. Anchor after a build job when one exists (it may
	// itself be scanned already; it is an anchor, not a target), otherwise
	// after the last job in document order.
	anchor := ""
	for i := range doc.Jobs {
		if doc.Jobs[i].HasBuildStep {
			anchor = doc.Jobs[i].ID
			break
		}
	}
	reason := "Append a scanning job after the build job so it analyzes build output."
	if anchor == "" {
		anchor = doc.Jobs[len(doc.Jobs)-1].ID
		reason = "No build job detected; append a scanning job at the end of the pipeline."
	}
	return InsertionPoint{
		Kind:     InsertAppendJob,
		AfterJob: anchor,
		Reason:   reason,
	}
}

// lastBuildStep returns the last classified build step of a job, or nil when
// none is distinguishable (the insertion then falls back to the job's end).
func lastBuildStep(job *Job) *Step {
	for i := len(job.Steps) - 1; i >= 0; i-- {
		if job.Steps[i].IsBuild {
			return &job.Steps[i]
		}
	}
	return nil
}
