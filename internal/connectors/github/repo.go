package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/workflow"
)

// workflowDir is where GitHub Actions pipeline definitions live.
const workflowDir = ".github/workflows"

// GetRepo fetches repository metadata
func (c *Connector) GetRepo(ctx context.Context, owner, repo string) (*interfaces.RepoInfo, error) {
	r, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
	}

	return &interfaces.RepoInfo{
		Owner:         owner,
		Name:          repo,
		DefaultBranch: r.GetDefaultBranch(),
		Archived:      r.GetArchived(),
	}, nil
}

// ListTree returns all file paths in the repository at the given ref, sorted
// for deterministic signal detection.
func (c *Connector) ListTree(ctx context.Context, owner, repo, ref string) ([]string, error) {
	tree, _, err := c.client.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	var paths []string
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		paths = append(paths, entry.GetPath())
	}
	sort.Strings(paths)
	return paths, nil
}

// ListWorkflows fetches every pipeline file under .github/workflows at the
// given ref. A repository without the directory yields an empty slice, not an
// error.
func (c *Connector) ListWorkflows(ctx context.Context, owner, repo, ref string) ([]workflow.WorkflowFile, error) {
	_, dir, resp, err := c.client.Repositories.GetContents(ctx, owner, repo, workflowDir, &github.RepositoryContentGetOptions{
		Ref: ref,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", workflowDir, err)
	}

	var files []workflow.WorkflowFile
	for _, entry := range dir {
		if entry.GetType() != "file" {
			continue
		}
		name := entry.GetName()
		ext := strings.ToLower(path.Ext(name))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		content, err := c.GetFileContent(ctx, owner, repo, ref, entry.GetPath())
		if err != nil {
			return nil, err
		}
		files = append(files, workflow.WorkflowFile{
			Path:    entry.GetPath(),
			Content: content,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// GetFileContent fetches one file's decoded content
func (c *Connector) GetFileContent(ctx context.Context, owner, repo, ref, filePath string) (string, error) {
	content, _, _, err := c.client.Repositories.GetContents(ctx, owner, repo, filePath, &github.RepositoryContentGetOptions{
		Ref: ref,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get file content for %s: %w", filePath, err)
	}
	if content == nil {
		return "", fmt.Errorf("file not found: %s", filePath)
	}

	// GetContent handles the encoding field; fall back to raw base64 when the
	// API omits it.
	decoded, err := content.GetContent()
	if err == nil {
		return decoded, nil
	}
	if content.Content != nil {
		raw, decErr := base64.StdEncoding.DecodeString(*content.Content)
		if decErr == nil {
			return string(raw), nil
		}
	}
	return "", fmt.Errorf("failed to decode content of %s: %w", filePath, err)
}

// ApplyChange creates a branch from the base, commits the file to it, and
// opens a pull request.
func (c *Connector) ApplyChange(ctx context.Context, change interfaces.ChangeSet) (*interfaces.ChangeResult, error) {
	baseRef, _, err := c.client.Git.GetRef(ctx, change.Owner, change.Repo, "refs/heads/"+change.BaseBranch)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base branch %s: %w", change.BaseBranch, err)
	}

	newRef := "refs/heads/" + change.NewBranch
	_, _, err = c.client.Git.CreateRef(ctx, change.Owner, change.Repo, &github.Reference{
		Ref:    github.String(newRef),
		Object: &github.GitObject{SHA: baseRef.Object.SHA},
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create branch %s: %w", change.NewBranch, err)
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(change.CommitMessage),
		Content: []byte(change.Content),
		Branch:  github.String(change.NewBranch),
		Committer: &github.CommitAuthor{
			Name:  github.String(c.config.CommitterName),
			Email: github.String(c.config.CommitterEmail),
		},
	}

	// Updating an existing file needs its blob SHA on the new branch.
	existing, _, _, getErr := c.client.Repositories.GetContents(ctx, change.Owner, change.Repo, change.Path, &github.RepositoryContentGetOptions{
		Ref: change.NewBranch,
	})
	if getErr == nil && existing != nil {
		opts.SHA = existing.SHA
	}

	commit, _, err := c.client.Repositories.CreateFile(ctx, change.Owner, change.Repo, change.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", change.Path, err)
	}

	pr, _, err := c.client.PullRequests.Create(ctx, change.Owner, change.Repo, &github.NewPullRequest{
		Title: github.String(change.PRTitle),
		Head:  github.String(change.NewBranch),
		Base:  github.String(change.BaseBranch),
		Body:  github.String(change.PRBody),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pull request: %w", err)
	}

	return &interfaces.ChangeResult{
		Branch:         change.NewBranch,
		CommitSHA:      commit.GetSHA(),
		PullRequestURL: pr.GetHTMLURL(),
	}, nil
}

// isAlreadyExists reports a 422 from ref creation, which means the branch is
// already there from a previous apply attempt.
func isAlreadyExists(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		return ghErr.Response != nil && ghErr.Response.StatusCode == 422
	}
	return false
}
