package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"cadence-ci/src/bitbucket"
	"cadence-ci/src/buildsvc"
	"cadence-ci/src/contracts"
	"cadence-ci/src/github"
	"cadence-ci/src/logger"
	"cadence-ci/src/store"
)

// response is the JSON envelope every webhook endpoint answers with. The
// keys present vary by provider and outcome; a response_code entry overrides
// the HTTP status and is stripped from the body.
type response map[string]interface{}

// Server hosts the per-provider webhook endpoints.
type Server struct {
	builds    *buildsvc.Service
	store     store.Store
	github    *github.Client
	bitbucket *bitbucket.Client
	log       logger.Logger
}

func NewServer(builds *buildsvc.Service, s store.Store, gh *github.Client, bb *bitbucket.Client, log logger.Logger) *Server {
	return &Server{builds: builds, store: s, github: gh, bitbucket: bb, log: log}
}

// Handler returns the webhook route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/git/{projectID}", s.route(s.handleGit,
		contracts.ProjectTypeLocal, contracts.ProjectTypeGit))
	mux.HandleFunc("POST /webhook/hg/{projectID}", s.route(s.handleHg,
		contracts.ProjectTypeLocal, contracts.ProjectTypeHg))
	mux.HandleFunc("POST /webhook/svn/{projectID}", s.route(s.handleSvn,
		contracts.ProjectTypeSvn))
	mux.HandleFunc("POST /webhook/github/{projectID}", s.route(s.handleGitHub,
		contracts.ProjectTypeGitHub, contracts.ProjectTypeGit))
	mux.HandleFunc("POST /webhook/gitlab/{projectID}", s.route(s.handleGitLab,
		contracts.ProjectTypeGitLab, contracts.ProjectTypeGit))
	mux.HandleFunc("POST /webhook/bitbucket/{projectID}", s.route(s.handleBitbucket,
		contracts.ProjectTypeBitbucket, contracts.ProjectTypeBitbucketHg,
		contracts.ProjectTypeBitbucketServer, contracts.ProjectTypeGit, contracts.ProjectTypeHg))
	mux.HandleFunc("POST /webhook/gogs/{projectID}", s.route(s.handleGogs,
		contracts.ProjectTypeGogs, contracts.ProjectTypeGit))
	return mux
}

type providerHandler func(r *http.Request, project *contracts.Project) (response, error)

// route wraps a provider handler: it resolves the project, enforces the
// provider's accepted project types, and converts any handler fault into a
// structured failed response instead of letting it escape.
func (s *Server) route(handle providerHandler, accepted ...contracts.ProjectType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := s.fetchProject(r, accepted)
		if err != nil {
			s.writeJSON(w, response{
				"status":        buildsvc.StatusFailed,
				"error":         err.Error(),
				"response_code": http.StatusNotFound,
			})
			return
		}

		body, err := handle(r, project)
		if err != nil {
			s.log.Error("Webhook for project %d failed: %v", project.ID, err)
			s.writeJSON(w, response{
				"status":        buildsvc.StatusFailed,
				"error":         err.Error(),
				"response_code": http.StatusInternalServerError,
			})
			return
		}
		s.writeJSON(w, body)
	}
}

func (s *Server) fetchProject(r *http.Request, accepted []contracts.ProjectType) (*contracts.Project, error) {
	projectID, err := strconv.ParseInt(r.PathValue("projectID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid project id %q", r.PathValue("projectID"))
	}

	project, err := s.store.GetProject(r.Context(), projectID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("project %d not found", projectID)
		}
		return nil, err
	}

	for _, projectType := range accepted {
		if project.Type == projectType {
			return project, nil
		}
	}
	return nil, fmt.Errorf("wrong project type: %s", project.Type)
}

func (s *Server) writeJSON(w http.ResponseWriter, body response) {
	code := http.StatusOK
	if override, ok := body["response_code"].(int); ok {
		code = override
		delete(body, "response_code")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Encoding webhook response failed: %v", err)
	}
}

// resultBody converts a fan-out result into the response envelope.
func resultBody(result *buildsvc.Result) response {
	body := response{"status": result.Status}
	if result.Message != "" {
		body["message"] = result.Message
	}
	if len(result.BuildIDs) > 0 {
		body["builds"] = result.BuildIDs
	}
	if result.ResponseCode != 0 {
		body["response_code"] = result.ResponseCode
	}
	return body
}
