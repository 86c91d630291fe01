package webhook

import (
	"net/http"

	"cadence-ci/src/contracts"
)

// handleGit serves plain git post-receive hooks:
// POST /webhook/git/<project>?branch=<branch>&commit=<commit>
func (s *Server) handleGit(r *http.Request, project *contracts.Project) (response, error) {
	event := queryEvent(r, project)
	event.Environment = r.URL.Query().Get("environment")

	result, err := s.builds.CreateBuilds(r.Context(), project.ID, event)
	if err != nil {
		return nil, err
	}
	return resultBody(result), nil
}

// handleHg serves Mercurial changegroup hooks.
func (s *Server) handleHg(r *http.Request, project *contracts.Project) (response, error) {
	result, err := s.builds.CreateBuilds(r.Context(), project.ID, queryEvent(r, project))
	if err != nil {
		return nil, err
	}
	return resultBody(result), nil
}

// handleSvn serves Subversion post-commit hooks.
func (s *Server) handleSvn(r *http.Request, project *contracts.Project) (response, error) {
	result, err := s.builds.CreateBuilds(r.Context(), project.ID, queryEvent(r, project))
	if err != nil {
		return nil, err
	}
	return resultBody(result), nil
}

func queryEvent(r *http.Request, project *contracts.Project) *contracts.CanonicalEvent {
	query := r.URL.Query()
	branch := query.Get("branch")
	if branch == "" {
		branch = project.DefaultBranch
	}
	return &contracts.CanonicalEvent{
		Source:    contracts.SourceWebhookPush,
		CommitID:  query.Get("commit"),
		Branch:    branch,
		Committer: query.Get("committer"),
		Message:   query.Get("message"),
	}
}
