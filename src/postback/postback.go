// Package postback reports build status changes to an external notification
// surface. Postback failures are reported to the caller for logging but must
// never abort a pipeline.
package postback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cadence-ci/src/contracts"
)

// Notifier sends the current state of a build to an external surface. Called
// at pipeline start and pipeline end.
type Notifier interface {
	Send(ctx context.Context, build *contracts.Build, project *contracts.Project) error
}

// Noop discards all status updates. Used when no postback endpoint is
// configured.
type Noop struct{}

func (Noop) Send(ctx context.Context, build *contracts.Build, project *contracts.Project) error {
	return nil
}

// HTTP posts a JSON snapshot of the build to a fixed endpoint.
type HTTP struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTP creates an HTTP notifier for the given endpoint.
func NewHTTP(endpoint string) *HTTP {
	return &HTTP{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type statusPayload struct {
	BuildID      int64  `json:"build_id"`
	ProjectID    int64  `json:"project_id"`
	ProjectTitle string `json:"project_title"`
	CommitID     string `json:"commit_id"`
	Branch       string `json:"branch"`
	Status       string `json:"status"`
}

func (h *HTTP) Send(ctx context.Context, build *contracts.Build, project *contracts.Project) error {
	body, err := json.Marshal(statusPayload{
		BuildID:      build.ID,
		ProjectID:    project.ID,
		ProjectTitle: project.Title,
		CommitID:     build.CommitID,
		Branch:       build.Branch,
		Status:       build.Status.String(),
	})
	if err != nil {
		return fmt.Errorf("encoding status payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("sending status postback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("status postback rejected: %s", resp.Status)
	}
	return nil
}
