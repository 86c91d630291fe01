package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"

	"cadence-ci/src/contracts"
)

type gitlabCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Author  struct {
		Email string `json:"email"`
	} `json:"author"`
}

type gitlabPayload struct {
	ObjectKind       string `json:"object_kind"`
	Ref              string `json:"ref"`
	ObjectAttributes *struct {
		State        string       `json:"state"`
		SourceBranch string       `json:"source_branch"`
		LastCommit   gitlabCommit `json:"last_commit"`
	} `json:"object_attributes"`
	Commits []gitlabCommit `json:"commits"`
}

// handleGitLab serves GitLab push and merge request webhooks.
func (s *Server) handleGitLab(r *http.Request, project *contracts.Project) (response, error) {
	var payload gitlabPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	if payload.ObjectKind == "merge_request" && payload.ObjectAttributes != nil {
		attributes := payload.ObjectAttributes
		if attributes.State != "opened" && attributes.State != "reopened" {
			return response{"status": "ignored", "message": "Unusable payload."}, nil
		}

		event := &contracts.CanonicalEvent{
			Source:    contracts.SourceWebhookPullRequestCreated,
			CommitID:  attributes.LastCommit.ID,
			Branch:    attributes.SourceBranch,
			Committer: attributes.LastCommit.Author.Email,
			Message:   attributes.LastCommit.Message,
		}
		result, err := s.builds.CreateBuilds(r.Context(), project.ID, event)
		if err != nil {
			return nil, err
		}
		return resultBody(result), nil
	}

	if len(payload.Commits) > 0 {
		// Only the newest commit of a push is built.
		commit := payload.Commits[len(payload.Commits)-1]
		event := &contracts.CanonicalEvent{
			Source:    contracts.SourceWebhookPush,
			CommitID:  commit.ID,
			Branch:    BranchFromRef(payload.Ref),
			Committer: commit.Author.Email,
			Message:   commit.Message,
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

	return response{"status": "ignored", "message": "Unusable payload."}, nil
}
