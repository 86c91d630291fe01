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

// githubPRSources maps pull request actions to trigger sources. Actions not
// listed are ignored.
var githubPRSources = map[string]contracts.Source{
	"opened":      contracts.SourceWebhookPullRequestCreated,
	"reopened":    contracts.SourceWebhookPullRequestCreated,
	"synchronize": contracts.SourceWebhookPullRequestUpdated,
	"closed":      contracts.SourceWebhookPullRequestClosed,
}

type githubCommit struct {
	ID       string `json:"id"`
	Distinct bool   `json:"distinct"`
	Message  string `json:"message"`
	Committer struct {
		Email string `json:"email"`
	} `json:"committer"`
}

type githubPayload struct {
	Ref     string `json:"ref"`
	BaseRef string `json:"base_ref"`
	After   string `json:"after"`
	Pusher  struct {
		Email string `json:"email"`
	} `json:"pusher"`
	HeadCommit *githubCommit `json:"head_commit"`

	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest *struct {
		CommitsURL string `json:"commits_url"`
		Head       struct {
			SHA  string `json:"sha"`
			Ref  string `json:"ref"`
			Repo struct {
				FullName string `json:"full_name"`
			} `json:"repo"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

// handleGitHub serves GitHub push and pull request webhooks. GitHub delivers
// either a JSON body or a form-encoded payload parameter depending on the
// hook's configured content type.
func (s *Server) handleGitHub(r *http.Request, project *contracts.Project) (response, error) {
	var payload githubPayload
	switch contentType(r) {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
	case "application/x-www-form-urlencoded":
		if err := json.Unmarshal([]byte(r.FormValue("payload")), &payload); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
	default:
		return response{
			"status":        buildsvc.StatusFailed,
			"error":         "Content type not supported.",
			"response_code": http.StatusUnauthorized,
		}, nil
	}

	if payload.PullRequest != nil {
		return s.githubPullRequest(r, project, &payload)
	}
	return s.githubPush(r, project, &payload)
}

func (s *Server) githubPush(r *http.Request, project *contracts.Project, payload *githubPayload) (response, error) {
	// GitHub sends a push with the all-zero commit when a pull request
	// closes against a deleted branch.
	if payload.After == ZeroCommit {
		return response{"status": "ignored"}, nil
	}
	if payload.HeadCommit == nil {
		return response{"status": "ignored", "message": "Unusable payload."}, nil
	}

	commit := payload.HeadCommit
	if !commit.Distinct {
		return response{
			"status":  "ignored",
			"commits": map[string]response{commit.ID: {"status": "ignored"}},
		}, nil
	}

	event := &contracts.CanonicalEvent{
		Source:   contracts.SourceWebhookPush,
		CommitID: commit.ID,
		Message:  commit.Message,
	}
	if IsTagRef(payload.Ref) {
		event.Tag = TagFromRef(payload.Ref)
		event.Branch = BranchFromRef(payload.BaseRef)
		event.Committer = payload.Pusher.Email
	} else {
		event.Branch = BranchFromRef(payload.Ref)
		event.Committer = commit.Committer.Email
	}

	result, err := s.builds.CreateBuilds(r.Context(), project.ID, event)
	if err != nil {
		return nil, err
	}
	return response{
		"status":  result.Status,
		"commits": map[string]response{commit.ID: resultBody(result)},
	}, nil
}

func (s *Server) githubPullRequest(r *http.Request, project *contracts.Project, payload *githubPayload) (response, error) {
	source, supported := githubPRSources[strings.TrimSpace(payload.Action)]
	if !supported {
		return response{
			"status":  "ignored",
			"message": fmt.Sprintf("Trigger type %q is not supported.", payload.Action),
		}, nil
	}

	commits, err := s.github.PullRequestCommits(r.Context(), payload.PullRequest.CommitsURL)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request commits: %w", err)
	}

	results := make(map[string]response, len(commits))
	status := buildsvc.StatusFailed
	for _, commit := range commits {
		// Only the pull request's current head is built.
		if commit.SHA != payload.PullRequest.Head.SHA {
			results[commit.SHA] = response{"status": "ignored", "message": "not branch head"}
			continue
		}

		event := &contracts.CanonicalEvent{
			Source:    source,
			CommitID:  commit.SHA,
			Branch:    BranchFromRef(payload.PullRequest.Base.Ref),
			Committer: commit.Commit.Author.Email,
			Message:   commit.Commit.Message,
			Extra: map[string]string{
				"pull_request_number": strconv.Itoa(payload.Number),
				"remote_branch":       payload.PullRequest.Head.Ref,
				"remote_reference":    payload.PullRequest.Head.Repo.FullName,
			},
		}
		result, err := s.builds.CreateBuilds(r.Context(), project.ID, event)
		if err != nil {
			results[commit.SHA] = response{"status": buildsvc.StatusFailed, "error": err.Error()}
			continue
		}
		results[commit.SHA] = resultBody(result)
		status = result.Status
	}

	return response{"status": status, "commits": results}, nil
}

func contentType(r *http.Request) string {
	value := r.Header.Get("Content-Type")
	if i := strings.Index(value, ";"); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}
