package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/munio/internal/common"
	"github.com/ternarybob/munio/internal/interfaces"
)

const pipelineContent = "name: CI\non: [push]\njobs:\n  build:\n    runs-on: ubuntu-latest\n    steps:\n      - run: mvn package\n"

func contentJSON(path, name, content string) map[string]interface{} {
	return map[string]interface{}{
		"type":     "file",
		"name":     name,
		"path":     path,
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString([]byte(content)),
	}
}

// newStubServer wires a minimal GitHub v3 API for one repository
func newStubServer(t *testing.T) (*httptest.Server, *Connector) {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v3/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":           "widget",
			"default_branch": "main",
			"archived":       false,
		})
	})

	mux.HandleFunc("/api/v3/repos/acme/widget/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tree": []map[string]interface{}{
				{"path": "src", "type": "tree"},
				{"path": "src/Main.java", "type": "blob"},
				{"path": "pom.xml", "type": "blob"},
			},
		})
	})

	mux.HandleFunc("/api/v3/repos/acme/widget/contents/.github/workflows", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"type": "file", "name": "ci.yml", "path": ".github/workflows/ci.yml"},
			{"type": "file", "name": "README.md", "path": ".github/workflows/README.md"},
			{"type": "dir", "name": "shared", "path": ".github/workflows/shared"},
		})
	})

	mux.HandleFunc("/api/v3/repos/acme/widget/contents/.github/workflows/ci.yml", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "GET":
			json.NewEncoder(w).Encode(contentJSON(".github/workflows/ci.yml", "ci.yml", pipelineContent))
		case "PUT":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"commit": map[string]interface{}{"sha": "abc1234"},
			})
		}
	})

	mux.HandleFunc("/api/v3/repos/acme/widget/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ref":    "refs/heads/main",
			"object": map[string]interface{}{"sha": "base-sha"},
		})
	})

	mux.HandleFunc("/api/v3/repos/acme/widget/git/refs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ref":    "refs/heads/munio/security-scan-x",
			"object": map[string]interface{}{"sha": "base-sha"},
		})
	})

	mux.HandleFunc("/api/v3/repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"number":   1,
			"html_url": "https://github.example/acme/widget/pull/1",
		})
	})

	// Bare repository without a workflows directory
	mux.HandleFunc("/api/v3/repos/acme/bare", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":           "bare",
			"default_branch": "main",
			"archived":       true,
		})
	})
	mux.HandleFunc("/api/v3/repos/acme/bare/contents/.github/workflows", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	connector, err := NewConnectorWithClient(&common.GitHubConfig{
		CommitterName:  "munio",
		CommitterEmail: "munio@localhost",
	}, server.Client(), server.URL)
	require.NoError(t, err)
	return server, connector
}

func TestNewConnectorRequiresToken(t *testing.T) {
	_, err := NewConnector(&common.GitHubConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")
}

func TestGetRepo(t *testing.T) {
	_, connector := newStubServer(t)

	repo, err := connector.GetRepo(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, "main", repo.DefaultBranch)
	assert.False(t, repo.Archived)

	archived, err := connector.GetRepo(context.Background(), "acme", "bare")
	require.NoError(t, err)
	assert.True(t, archived.Archived)
}

func TestListTreeReturnsSortedBlobs(t *testing.T) {
	_, connector := newStubServer(t)

	paths, err := connector.ListTree(context.Background(), "acme", "widget", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"pom.xml", "src/Main.java"}, paths, "tree entries are dropped and blobs sorted")
}

func TestListWorkflowsFetchesYAMLOnly(t *testing.T) {
	_, connector := newStubServer(t)

	files, err := connector.ListWorkflows(context.Background(), "acme", "widget", "main")
	require.NoError(t, err)
	require.Len(t, files, 1, "non-YAML entries and directories are skipped")
	assert.Equal(t, ".github/workflows/ci.yml", files[0].Path)
	assert.Equal(t, pipelineContent, files[0].Content)
}

func TestListWorkflowsMissingDirectory(t *testing.T) {
	_, connector := newStubServer(t)

	files, err := connector.ListWorkflows(context.Background(), "acme", "bare", "main")
	require.NoError(t, err, "a repository without pipelines is not an error")
	assert.Empty(t, files)
}

func TestGetFileContentDecodesBase64(t *testing.T) {
	_, connector := newStubServer(t)

	content, err := connector.GetFileContent(context.Background(), "acme", "widget", "main", ".github/workflows/ci.yml")
	require.NoError(t, err)
	assert.Equal(t, pipelineContent, content)
}

func TestApplyChange(t *testing.T) {
	_, connector := newStubServer(t)

	result, err := connector.ApplyChange(context.Background(), interfaces.ChangeSet{
		Owner:         "acme",
		Repo:          "widget",
		BaseBranch:    "main",
		NewBranch:     "munio/security-scan-x",
		Path:          ".github/workflows/ci.yml",
		Content:       pipelineContent,
		CommitMessage: "Add polaris security scanning",
		PRTitle:       "Add polaris security scanning",
		PRBody:        "Adds a Polaris scan step to the build job.",
	})
	require.NoError(t, err)

	assert.Equal(t, "munio/security-scan-x", result.Branch)
	assert.Equal(t, "abc1234", result.CommitSHA)
	assert.Equal(t, "https://github.example/acme/widget/pull/1", result.PullRequestURL)
}
