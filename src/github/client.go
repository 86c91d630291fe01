// Package github is a minimal GitHub API client used to resolve the commit
// list of a pull request during webhook processing.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client is a GitHub API client.
type Client struct {
	token      string
	perPage    int
	httpClient *http.Client
}

// NewClient creates a new GitHub client. token may be empty for public
// repositories; perPage raises the commit page size for large pull requests
// when positive.
func NewClient(token string, perPage int) *Client {
	return &Client{
		token:   token,
		perPage: perPage,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Commit is one commit in a pull request's commit list.
type Commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
		Message string `json:"message"`
	} `json:"commit"`
}

// PullRequestCommits fetches the commits of a pull request. commitsURL is
// the commits_url the webhook payload carries.
func (c *Client) PullRequestCommits(ctx context.Context, commitsURL string) ([]Commit, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", commitsURL, nil)
	if err != nil {
		return nil, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	if c.perPage > 0 {
		query := req.URL.Query()
		query.Set("per_page", strconv.Itoa(c.perPage))
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, string(body))
	}

	var commits []Commit
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		return nil, err
	}
	return commits, nil
}
