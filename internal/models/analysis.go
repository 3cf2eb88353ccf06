package models

import (
	"time"

	"github.com/ternarybob/munio/internal/workflow"
)

// RunStatus tracks the lifecycle of a batch analysis run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
)

// AnalyzeRequest asks for an analysis of one or more repositories.
// Repository names use the "owner/name" form.
type AnalyzeRequest struct {
	Repositories []string `json:"repositories" validate:"required,min=1,dive,required"`
	Ref          string   `json:"ref,omitempty"` // Branch or tag to analyze; repository default when empty
}

// AnalysisRun is the aggregate result of one batch analysis. Individual
// repository results carry their own failure markers; a run completes even
// when every repository inside it failed.
type AnalysisRun struct {
	ID          string              `json:"id" badgerhold:"key"`
	Status      RunStatus           `json:"status"`
	Requested   int                 `json:"requested"`
	Completed   int                 `json:"completed"`
	Failed      int                 `json:"failed"`
	Results     []workflow.Analysis `json:"results"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
	CancelledBy string              `json:"cancelled_by,omitempty"`
}

// PreviewRequest asks for the merged document and diff of one recommendation.
type PreviewRequest struct {
	RunID            string `json:"run_id" validate:"required"`
	RecommendationID string `json:"recommendation_id" validate:"required"`
}

// PreviewResult carries the merged pipeline and its line diff.
type PreviewResult struct {
	Repository string        `json:"repository"`
	TargetPath string        `json:"target_path"`
	Content    string        `json:"content"`
	Diff       workflow.Diff `json:"diff"`
}

// ApplyRequest asks for a recommendation to be committed to the repository on
// a new branch with a pull request.
type ApplyRequest struct {
	RunID            string `json:"run_id" validate:"required"`
	RecommendationID string `json:"recommendation_id" validate:"required"`
	BaseBranch       string `json:"base_branch,omitempty"` // Repository default when empty
}

// ApplyResult reports the branch, commit and pull request created for an
// applied recommendation.
type ApplyResult struct {
	Repository     string `json:"repository"`
	Branch         string `json:"branch"`
	CommitSHA      string `json:"commit_sha"`
	PullRequestURL string `json:"pull_request_url"`
	TargetPath     string `json:"target_path"`
}

// ProgressEvent is pushed over the websocket while a batch run executes.
type ProgressEvent struct {
	Type       string    `json:"type"` // "run_started", "repo_completed", "repo_failed", "run_completed", "run_cancelled"
	RunID      string    `json:"run_id"`
	Repository string    `json:"repository,omitempty"`
	Completed  int       `json:"completed"`
	Requested  int       `json:"requested"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
