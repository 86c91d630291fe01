// Package worker provides the build worker agent: it consumes queued build
// requests from the broker and runs each build's pipeline to completion.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"cadence-ci/src/broker"
	"cadence-ci/src/builder"
	"cadence-ci/src/contracts"
	"cadence-ci/src/logger"
)

// Agent consumes build requests and executes builds sequentially. One agent
// runs one build at a time; run more agent processes for parallel builds.
type Agent struct {
	broker  broker.Broker
	builder *builder.Builder
	logger  logger.Logger
}

// NewAgent creates a new worker agent.
func NewAgent(brk broker.Broker, b *builder.Builder, log logger.Logger) *Agent {
	return &Agent{broker: brk, builder: b, logger: log}
}

// Run starts the agent's main loop. It subscribes to the build queue and
// processes requests until the context is cancelled or the channel closes.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("[Worker] Starting...")

	msgChan, err := a.broker.Subscribe(ctx, contracts.TopicBuildsQueued, "cadence-workers")
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", contracts.TopicBuildsQueued, err)
	}

	a.logger.Info("[Worker] Listening for builds on '%s' topic...", contracts.TopicBuildsQueued)

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				a.logger.Info("[Worker] Message channel closed, shutting down")
				return nil
			}

			if err := a.processRequest(ctx, msg); err != nil {
				a.logger.Error("[Worker] Error processing build request: %v", err)
			}

		case <-ctx.Done():
			a.logger.Info("[Worker] Context cancelled, shutting down")
			return ctx.Err()
		}
	}
}

func (a *Agent) processRequest(ctx context.Context, msg broker.Message) error {
	var request contracts.BuildRequest
	if err := json.Unmarshal(msg.Value, &request); err != nil {
		return fmt.Errorf("failed to unmarshal build request: %w", err)
	}

	a.logger.Info("[Worker] Running build %d (project %d)", request.BuildID, request.ProjectID)
	return a.builder.Execute(ctx, request.BuildID)
}
