package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"cadence-ci/src/buildsvc"
	"cadence-ci/src/contracts"
)

var (
	gogsActiveActions   = map[string]bool{"opened": true, "reopened": true, "label_updated": true, "label_cleared": true}
	gogsInactiveActions = map[string]bool{"closed": true}
)

// envLabelPrefix marks pull request labels that name a deployment
// environment.
const envLabelPrefix = "env:"

type gogsPayload struct {
	Ref     string `json:"ref"`
	Commits []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		Author  struct {
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commits"`

	Action      string `json:"action"`
	PullRequest *struct {
		State      string `json:"state"`
		Merged     bool   `json:"merged"`
		HeadBranch string `json:"head_branch"`
		BaseBranch string `json:"base_branch"`
		Labels     []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"pull_request"`
}

// handleGogs serves Gogs push and pull request webhooks. Pull requests do
// not build directly: their env: labels reassign branches to environments,
// and every environment whose branch list changed gets a rebuild.
func (s *Server) handleGogs(r *http.Request, project *contracts.Project) (response, error) {
	var payload gogsPayload
	switch contentType(r) {
	case "application/x-www-form-urlencoded":
		if err := json.Unmarshal([]byte(r.FormValue("payload")), &payload); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
	default:
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
	}

	if len(payload.Commits) > 0 {
		return s.gogsPush(r, project, &payload)
	}
	if payload.PullRequest != nil {
		return s.gogsPullRequest(r, project, &payload)
	}
	return response{"status": "ignored", "message": "Unusable payload."}, nil
}

func (s *Server) gogsPush(r *http.Request, project *contracts.Project, payload *gogsPayload) (response, error) {
	results := make(map[string]response, len(payload.Commits))
	status := buildsvc.StatusFailed

	for _, commit := range payload.Commits {
		event := &contracts.CanonicalEvent{
			Source:    contracts.SourceWebhookPush,
			CommitID:  commit.ID,
			Branch:    BranchFromRef(payload.Ref),
			Committer: commit.Author.Email,
			Message:   commit.Message,
		}
		result, err := s.builds.CreateBuilds(r.Context(), project.ID, event)
		if err != nil {
			results[commit.ID] = response{"status": buildsvc.StatusFailed, "error": err.Error()}
			continue
		}
		results[commit.ID] = resultBody(result)
		status = result.Status
	}

	return response{"status": status, "commits": results}, nil
}

func (s *Server) gogsPullRequest(r *http.Request, project *contracts.Project, payload *gogsPayload) (response, error) {
	ctx := r.Context()
	pr := payload.PullRequest
	action := payload.Action

	if !gogsActiveActions[action] && !gogsInactiveActions[action] {
		return response{"status": "ignored", "message": fmt.Sprintf("Action %s ignored", action)}, nil
	}
	if pr.State != "open" && pr.State != "closed" {
		return response{"status": "ignored", "message": fmt.Sprintf("State %s ignored", pr.State)}, nil
	}

	// Environments named by env: labels while the pull request is open.
	labelled := make(map[string]bool)
	if gogsActiveActions[action] && pr.State == "open" {
		for _, label := range pr.Labels {
			if strings.HasPrefix(label.Name, envLabelPrefix) {
				labelled[strings.TrimPrefix(label.Name, envLabelPrefix)] = true
			}
		}
	}

	environments, err := s.store.EnvironmentsByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("loading environments: %w", err)
	}

	updated := make(map[int64]bool)
	for i := range environments {
		env := &environments[i]
		switch {
		case labelled[env.Name] && !env.HasBranch(pr.HeadBranch):
			env.Branches = append(env.Branches, pr.HeadBranch)
		case !labelled[env.Name] && env.HasBranch(pr.HeadBranch):
			env.Branches = removeBranch(env.Branches, pr.HeadBranch)
		default:
			continue
		}
		if err := s.store.SaveEnvironment(ctx, env); err != nil {
			return nil, fmt.Errorf("saving environment: %w", err)
		}
		updated[env.ID] = true
	}

	// A merged pull request also refreshes the base branch's environments.
	if pr.State == "closed" && pr.Merged {
		for _, env := range environments {
			if env.HasBranch(pr.BaseBranch) {
				updated[env.ID] = true
			}
		}
	}

	if len(updated) == 0 {
		return response{"status": "ignored", "message": "Branch environments not changed"}, nil
	}

	var ids []int64
	for environmentID := range updated {
		if _, err := s.builds.CreateForEnvironment(ctx, project, environmentID, &contracts.CanonicalEvent{
			Source: contracts.SourceWebhookPush,
		}); err != nil {
			return nil, fmt.Errorf("creating environment build: %w", err)
		}
		ids = append(ids, environmentID)
	}

	return response{"status": "ok", "message": fmt.Sprintf("Branch environments updated %v", ids)}, nil
}

func removeBranch(branches []string, branch string) []string {
	result := branches[:0]
	for _, b := range branches {
		if b != branch {
			result = append(result, b)
		}
	}
	return result
}
