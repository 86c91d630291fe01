// Package bitbucket is a minimal Bitbucket API client used to resolve the
// commit list of a pull request during webhook processing.
package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoCredentials is returned when a pull request webhook requires API
// access but no account credentials are configured.
var ErrNoCredentials = errors.New("bitbucket username and app password are not configured")

// Client is a Bitbucket API client authenticated with an app password.
type Client struct {
	username    string
	appPassword string
	httpClient  *http.Client
}

// NewClient creates a new Bitbucket client.
func NewClient(username, appPassword string) *Client {
	return &Client{
		username:    username,
		appPassword: appPassword,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Commit is one commit in a pull request's commit list.
type Commit struct {
	Hash   string `json:"hash"`
	Author struct {
		// Raw is the "Name <email>" form.
		Raw string `json:"raw"`
	} `json:"author"`
	Message string `json:"message"`
}

// PullRequestCommits fetches the commits of a pull request. commitsURL is
// the commits link the webhook payload carries.
func (c *Client) PullRequestCommits(ctx context.Context, commitsURL string) ([]Commit, error) {
	if c.username == "" || c.appPassword == "" {
		return nil, ErrNoCredentials
	}

	req, err := http.NewRequestWithContext(ctx, "GET", commitsURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Bitbucket API error %d: %s", resp.StatusCode, string(body))
	}

	var page struct {
		Values []Commit `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, err
	}
	return page.Values, nil
}
