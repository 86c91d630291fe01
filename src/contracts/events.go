package contracts

// Topic names for broker communication between the webhook surface and the
// build workers.
const (
	// TopicBuildsQueued carries BuildRequest messages for builds created in
	// pending state. Keyed by project ID so one project's builds keep their
	// relative order.
	TopicBuildsQueued = "cadence.builds.queued"
)

// BuildRequest is the broker message emitted once per created build. Workers
// consume it, load the build from the store, and run the pipeline.
type BuildRequest struct {
	BuildID   int64 `json:"build_id"`
	ProjectID int64 `json:"project_id"`
}

// CanonicalEvent is the normalized form of a provider webhook payload. It is
// ephemeral: it exists only between the webhook normalizer and the fan-out
// engine and is never persisted.
type CanonicalEvent struct {
	Source    Source            `json:"source"`
	CommitID  string            `json:"commit_id"`
	Branch    string            `json:"branch"`
	Tag       string            `json:"tag,omitempty"`
	Committer string            `json:"committer"`
	Message   string            `json:"message"`
	// Environment names an explicit deployment target when the trigger
	// carries one (plain git webhooks, manual triggers).
	Environment string            `json:"environment,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}
