package interfaces

import (
	"context"

	"github.com/ternarybob/munio/internal/workflow"
)

// RepoInfo is the repository metadata the analyzer needs before fetching.
type RepoInfo struct {
	Owner         string
	Name          string
	DefaultBranch string
	Archived      bool
}

// ChangeSet describes one file written to a new branch with a pull request.
type ChangeSet struct {
	Owner         string
	Repo          string
	BaseBranch    string
	NewBranch     string
	Path          string
	Content       string
	CommitMessage string
	PRTitle       string
	PRBody        string
}

// ChangeResult reports what the hosting API created for a change set.
type ChangeResult struct {
	Branch         string
	CommitSHA      string
	PullRequestURL string
}

// GitHubConnector - interface for the GitHub hosting API
type GitHubConnector interface {
	// TestConnection verifies the configured token
	TestConnection(ctx context.Context) error

	// GetRepo fetches repository metadata
	GetRepo(ctx context.Context, owner, repo string) (*RepoInfo, error)

	// ListTree returns all file paths in the repository at the given ref
	ListTree(ctx context.Context, owner, repo, ref string) ([]string, error)

	// ListWorkflows fetches every pipeline file under .github/workflows
	ListWorkflows(ctx context.Context, owner, repo, ref string) ([]workflow.WorkflowFile, error)

	// GetFileContent fetches one file's decoded content
	GetFileContent(ctx context.Context, owner, repo, ref, path string) (string, error)

	// ApplyChange creates a branch, commits the file, and opens a pull request
	ApplyChange(ctx context.Context, change ChangeSet) (*ChangeResult, error)
}
