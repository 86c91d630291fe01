package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cadence-ci/src/buildsvc"
	"cadence-ci/src/contracts"
)

// Trigger sources by X-Event-Key header value.
var bitbucketPRSources = map[string]contracts.Source{
	"pullrequest:created":   contracts.SourceWebhookPullRequestCreated,
	"pullrequest:updated":   contracts.SourceWebhookPullRequestUpdated,
	"pullrequest:fulfilled": contracts.SourceWebhookPullRequestMerged,
	"pullrequest:rejected":  contracts.SourceWebhookPullRequestClosed,
}

var bitbucketServerPRSources = map[string]contracts.Source{
	"pr:opened":   contracts.SourceWebhookPullRequestCreated,
	"pr:modified": contracts.SourceWebhookPullRequestUpdated,
	"pr:merged":   contracts.SourceWebhookPullRequestMerged,
	"pr:declined": contracts.SourceWebhookPullRequestClosed,
}

type bitbucketPayload struct {
	Push *struct {
		Changes []struct {
			New *struct {
				Name   string `json:"name"`
				Target struct {
					Hash    string `json:"hash"`
					Message string `json:"message"`
					Author  struct {
						Raw string `json:"raw"`
					} `json:"author"`
				} `json:"target"`
			} `json:"new"`
		} `json:"changes"`
	} `json:"push"`

	PullRequest *struct {
		ID    int `json:"id"`
		Links struct {
			Commits struct {
				Href string `json:"href"`
			} `json:"commits"`
		} `json:"links"`
		Source struct {
			Commit struct {
				Hash string `json:"hash"`
			} `json:"commit"`
			Branch struct {
				Name string `json:"name"`
			} `json:"branch"`
			Repository struct {
				FullName string `json:"full_name"`
			} `json:"repository"`
		} `json:"source"`
		Destination struct {
			Branch struct {
				Name string `json:"name"`
			} `json:"branch"`
		} `json:"destination"`
	} `json:"pullrequest"`

	ServerPullRequest *struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
		Author      struct {
			User struct {
				EmailAddress string `json:"emailAddress"`
			} `json:"user"`
		} `json:"author"`
		FromRef struct {
			DisplayID    string `json:"displayId"`
			LatestCommit string `json:"latestCommit"`
			Repository   struct {
				Project struct {
					Name string `json:"name"`
				} `json:"project"`
			} `json:"repository"`
		} `json:"fromRef"`
		ToRef struct {
			DisplayID string `json:"displayId"`
		} `json:"toRef"`
	} `json:"pullRequest"`
}

// bitbucketServicePayload is the legacy POST-service shape delivered as a
// form-encoded payload parameter.
type bitbucketServicePayload struct {
	Commits []struct {
		RawNode   string `json:"raw_node"`
		RawAuthor string `json:"raw_author"`
		Branch    string `json:"branch"`
		Message   string `json:"message"`
	} `json:"commits"`
}

// handleBitbucket serves Bitbucket push and pull request webhooks, plus the
// legacy POST service.
func (s *Server) handleBitbucket(r *http.Request, project *contracts.Project) (response, error) {
	if raw := r.FormValue("payload"); raw != "" {
		var legacy bitbucketServicePayload
		if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
		return s.bitbucketService(r, project, &legacy)
	}

	var payload bitbucketPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	switch {
	case payload.PullRequest != nil:
		return s.bitbucketPullRequest(r, project, &payload)
	case payload.ServerPullRequest != nil:
		return s.bitbucketServerPullRequest(r, project, &payload)
	case payload.Push != nil && len(payload.Push.Changes) > 0:
		return s.bitbucketPush(r, project, &payload)
	}
	return response{"status": buildsvc.StatusFailed, "commits": response{}}, nil
}

func (s *Server) bitbucketPush(r *http.Request, project *contracts.Project, payload *bitbucketPayload) (response, error) {
	results := make(map[string]response)
	status := buildsvc.StatusFailed

	for _, change := range payload.Push.Changes {
		if change.New == nil {
			continue
		}
		target := change.New.Target
		event := &contracts.CanonicalEvent{
			Source:    contracts.SourceWebhookPush,
			CommitID:  target.Hash,
			Branch:    change.New.Name,
			Committer: AuthorEmail(target.Author.Raw),
			Message:   target.Message,
		}
		result, err := s.builds.CreateBuilds(r.Context(), project.ID, event)
		if err != nil {
			results[target.Hash] = response{"status": buildsvc.StatusFailed, "error": err.Error()}
			continue
		}
		results[target.Hash] = resultBody(result)
		status = result.Status
	}

	return response{"status": status, "commits": results}, nil
}

func (s *Server) bitbucketPullRequest(r *http.Request, project *contracts.Project, payload *bitbucketPayload) (response, error) {
	source, supported := bitbucketPRSources[strings.TrimSpace(r.Header.Get("X-Event-Key"))]
	if !supported {
		return response{
			"status":  "ignored",
			"message": fmt.Sprintf("Trigger type %q is not supported.", r.Header.Get("X-Event-Key")),
		}, nil
	}

	pr := payload.PullRequest
	commits, err := s.bitbucket.PullRequestCommits(r.Context(), pr.Links.Commits.Href)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request commits: %w", err)
	}

	results := make(map[string]response, len(commits))
	status := buildsvc.StatusFailed
	for _, commit := range commits {
		// The payload carries a short hash; only the matching head commit
		// is built.
		if !strings.HasPrefix(commit.Hash, pr.Source.Commit.Hash) {
			results[commit.Hash] = response{"status": "ignored", "message": "not branch head"}
			continue
		}

		event := &contracts.CanonicalEvent{
			Source:    source,
			CommitID:  commit.Hash,
			Branch:    pr.Destination.Branch.Name,
			Committer: AuthorEmail(commit.Author.Raw),
			Message:   commit.Message,
			Extra: map[string]string{
				"pull_request_number": strconv.Itoa(pr.ID),
				"remote_branch":       pr.Source.Branch.Name,
				"remote_reference":    pr.Source.Repository.FullName,
			},
		}
		result, err := s.builds.CreateBuilds(r.Context(), project.ID, event)
		if err != nil {
			results[commit.Hash] = response{"status": buildsvc.StatusFailed, "error": err.Error()}
			continue
		}
		results[commit.Hash] = resultBody(result)
		status = result.Status
	}

	return response{"status": status, "commits": results}, nil
}

func (s *Server) bitbucketServerPullRequest(r *http.Request, project *contracts.Project, payload *bitbucketPayload) (response, error) {
	source, supported := bitbucketServerPRSources[strings.TrimSpace(r.Header.Get("X-Event-Key"))]
	if !supported {
		return response{
			"status":  "ignored",
			"message": fmt.Sprintf("Trigger type %q is not supported.", r.Header.Get("X-Event-Key")),
		}, nil
	}

	pr := payload.ServerPullRequest
	event := &contracts.CanonicalEvent{
		Source:    source,
		CommitID:  pr.FromRef.LatestCommit,
		Branch:    pr.ToRef.DisplayID,
		Committer: pr.Author.User.EmailAddress,
		Message:   pr.Description,
		Extra: map[string]string{
			"pull_request_number": strconv.Itoa(pr.ID),
			"remote_branch":       pr.FromRef.DisplayID,
			"remote_reference":    pr.FromRef.Repository.Project.Name,
		},
	}
	result, err := s.builds.CreateBuilds(r.Context(), project.ID, event)
	if err != nil {
		return nil, err
	}
	return response{
		"status":  result.Status,
		"commits": map[string]response{pr.FromRef.LatestCommit: resultBody(result)},
	}, nil
}

func (s *Server) bitbucketService(r *http.Request, project *contracts.Project, payload *bitbucketServicePayload) (response, error) {
	results := make(map[string]response, len(payload.Commits))
	status := buildsvc.StatusFailed

	for _, commit := range payload.Commits {
		event := &contracts.CanonicalEvent{
			Source:    contracts.SourceWebhookPush,
			CommitID:  commit.RawNode,
			Branch:    commit.Branch,
			Committer: AuthorEmail(commit.RawAuthor),
			Message:   commit.Message,
		}
		result, err := s.builds.CreateBuilds(r.Context(), project.ID, event)
		if err != nil {
			results[commit.RawNode] = response{"status": buildsvc.StatusFailed, "error": err.Error()}
			continue
		}
		results[commit.RawNode] = resultBody(result)
		status = result.Status
	}

	return response{"status": status, "commits": results}, nil
}
