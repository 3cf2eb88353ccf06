// Package github implements the hosting-API connector against the GitHub v3
// REST API.
package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/munio/internal/common"
	"github.com/ternarybob/munio/internal/interfaces"
	"golang.org/x/oauth2"
)

// Connector implements interfaces.GitHubConnector
type Connector struct {
	client *github.Client
	config *common.GitHubConfig
}

// NewConnector creates a new GitHub connector from configuration
func NewConnector(config *common.GitHubConfig) (*Connector, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: config.Token},
	)
	tc := oauth2.NewClient(ctx, ts)
	if config.RequestTimeout > 0 {
		tc.Timeout = config.RequestTimeout
	}

	client := github.NewClient(tc)
	if config.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(config.BaseURL, config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
	}

	return &Connector{client: client, config: config}, nil
}

// NewConnectorWithClient creates a connector around an existing HTTP client.
// Used by tests to point at a stub server.
func NewConnectorWithClient(config *common.GitHubConfig, httpClient *http.Client, baseURL string) (*Connector, error) {
	client := github.NewClient(httpClient)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
	}
	return &Connector{client: client, config: config}, nil
}

// TestConnection verifies the token works by getting the authenticated user
func (c *Connector) TestConnection(ctx context.Context) error {
	_, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return fmt.Errorf("github connection test failed: %w", err)
	}
	return nil
}

// Ensure interface compliance
var _ interfaces.GitHubConnector = (*Connector)(nil)
