package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/repolens/repolens/analysis/agents"
	"github.com/repolens/repolens/analysis/codemodel"
)

// Config tunes one orchestrator instance.
type Config struct {
	// MaxParallel caps concurrently running agents.
	MaxParallel int
	// MaxRetries is the number of retries after the first attempt for
	// recoverable failures.
	MaxRetries int
	// RetryBackoff is the delay before the first retry; it doubles on each
	// subsequent one.
	RetryBackoff time.Duration
	// AgentTimeout bounds a single agent attempt. Zero disables the bound.
	AgentTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxParallel:  4,
		MaxRetries:   2,
		RetryBackoff: 200 * time.Millisecond,
		AgentTimeout: 60 * time.Second,
	}
}

// Observer receives execution telemetry. Implementations must be
// goroutine-safe; the metrics exporter is the production implementation.
type Observer interface {
	AgentFinished(agentID string, status agents.Status, duration time.Duration, retries int)
}

// Orchestrator runs a set of agents over their dependency graph. A single
// goroutine owns all bookkeeping state; agent goroutines communicate results
// back over a channel, so no result map is ever written concurrently.
type Orchestrator struct {
	agents   map[string]agents.Agent
	graph    *Graph
	config   *Config
	observer Observer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithObserver attaches an execution observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New builds an orchestrator for the given agents. The dependency graph is
// derived from each agent's declared dependencies and validated up front:
// duplicate IDs, unknown dependencies, and cycles all fail construction.
func New(list []agents.Agent, config *Config, opts ...Option) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if len(list) == 0 {
		return nil, &ConfigurationError{Reason: "no agents registered"}
	}
	if config.MaxParallel <= 0 {
		return nil, &ConfigurationError{Reason: "MaxParallel must be positive"}
	}

	byID := make(map[string]agents.Agent, len(list))
	deps := make(map[string][]string, len(list))
	for _, a := range list {
		if _, dup := byID[a.ID()]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("duplicate agent %q", a.ID())}
		}
		byID[a.ID()] = a
		deps[a.ID()] = a.Dependencies()
	}

	graph, err := NewGraph(deps)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		agents: byID,
		graph:  graph,
		config: config,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// outcome is what an agent goroutine reports back to the scheduling loop.
type outcome struct {
	result agents.RunResult
	fatal  error
}

// Execute runs all agents and returns every agent's terminal result, keyed by
// agent ID. The returned error is non-nil only when the run as a whole
// aborted: an agent reported a fatal error, or the context was cancelled.
// Individual agent failures are recorded in their RunResult instead.
func (o *Orchestrator) Execute(ctx context.Context, model *codemodel.CodeModel) (map[string]agents.RunResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(map[string]agents.RunResult, len(o.agents))
	succeeded := make(map[string]bool, len(o.agents))
	launched := make(map[string]bool, len(o.agents))
	done := make(chan outcome)
	inflight := 0
	var abort error

	slog.Info("orchestrator: run started",
		"repository_id", model.RepositoryID(),
		"agents", len(o.agents))

	for {
		if abort == nil && runCtx.Err() == nil {
			for _, id := range o.graph.ReadySet(succeeded) {
				if launched[id] || inflight >= o.config.MaxParallel {
					continue
				}
				launched[id] = true
				inflight++
				agent := o.agents[id]
				deps := o.dependencyResults(id, results)
				go func() {
					done <- o.runAgent(runCtx, agent, model, deps)
				}()
			}
		}
		if inflight == 0 {
			break
		}

		out := <-done
		inflight--
		results[out.result.AgentID] = out.result
		if out.result.Succeeded() {
			succeeded[out.result.AgentID] = true
		}
		if out.fatal != nil && abort == nil {
			// Drain in-flight agents but launch nothing new.
			abort = out.fatal
			cancel()
		}
	}

	if abort == nil && ctx.Err() != nil {
		abort = ctx.Err()
	}

	// Whatever never launched was unreachable: a dependency failed, was
	// skipped, or the run aborted first.
	for _, id := range o.graph.Nodes() {
		if _, ok := results[id]; ok {
			continue
		}
		now := time.Now().UTC()
		results[id] = agents.RunResult{
			AgentID:    id,
			Status:     agents.StatusSkipped,
			Err:        o.skipReason(id, results, abort),
			StartedAt:  now,
			FinishedAt: now,
		}
		o.observe(id, agents.StatusSkipped, 0, 0)
	}

	slog.Info("orchestrator: run finished",
		"repository_id", model.RepositoryID(),
		"succeeded", len(succeeded),
		"total", len(o.agents),
		"aborted", abort != nil)

	return results, abort
}

// dependencyResults narrows the result map to the agent's declared
// dependencies, so an agent can never observe results it did not ask for.
func (o *Orchestrator) dependencyResults(id string, results map[string]agents.RunResult) map[string]agents.RunResult {
	deps := make(map[string]agents.RunResult)
	for _, dep := range o.graph.Dependencies(id) {
		if res, ok := results[dep]; ok {
			deps[dep] = res
		}
	}
	return deps
}

func (o *Orchestrator) skipReason(id string, results map[string]agents.RunResult, abort error) string {
	if abort != nil {
		return fmt.Sprintf("skipped: run aborted: %v", abort)
	}
	for _, dep := range o.graph.Dependencies(id) {
		res, ok := results[dep]
		if !ok {
			// The dependency never ran either; it is being skipped in the
			// same pass.
			return fmt.Sprintf("skipped: dependency %s skipped", dep)
		}
		if !res.Succeeded() {
			return fmt.Sprintf("skipped: dependency %s %s", dep, res.Status)
		}
	}
	return "skipped: dependency unavailable"
}

// runAgent executes one agent with the configured retry policy and returns
// its terminal result. Only recoverable errors are retried; fatal errors are
// surfaced to abort the run, and anything else fails the agent immediately.
func (o *Orchestrator) runAgent(ctx context.Context, agent agents.Agent, model *codemodel.CodeModel, deps map[string]agents.RunResult) outcome {
	started := time.Now().UTC()
	attempts := o.config.MaxRetries + 1

	var findings []agents.Finding
	var err error
	retries := 0

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			retries++
			backoff := o.config.RetryBackoff << (attempt - 1)
			slog.Warn("orchestrator: retrying agent",
				"agent_id", agent.ID(),
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				err = ctx.Err()
			}
			if ctx.Err() != nil {
				break
			}
		}

		findings, err = o.invoke(ctx, agent, model, deps)
		if err == nil {
			break
		}
		if !agents.IsRecoverable(err) || ctx.Err() != nil {
			break
		}
	}

	finished := time.Now().UTC()
	result := agents.RunResult{
		AgentID:    agent.ID(),
		StartedAt:  started,
		FinishedAt: finished,
	}

	switch {
	case err == nil:
		result.Status = agents.StatusSucceeded
		result.Findings = findings
	default:
		result.Status = agents.StatusFailed
		result.Err = err.Error()
		slog.Error("orchestrator: agent failed",
			"agent_id", agent.ID(),
			"retries", retries,
			"error", err)
	}
	o.observe(agent.ID(), result.Status, finished.Sub(started), retries)

	if agents.IsFatal(err) {
		return outcome{result: result, fatal: errors.Wrapf(err, "agent %s", agent.ID())}
	}
	return outcome{result: result}
}

// invoke runs a single attempt under the per-attempt timeout, converting
// panics and deadline hits into ordinary errors. The attempt context is
// detached from run cancellation: cancellation takes effect at launch and
// retry boundaries, while an attempt already in flight (and any LLM call
// inside it) finishes on its own or hits the attempt timeout.
func (o *Orchestrator) invoke(ctx context.Context, agent agents.Agent, model *codemodel.CodeModel, deps map[string]agents.RunResult) (findings []agents.Finding, err error) {
	attemptCtx := context.WithoutCancel(ctx)
	if o.config.AgentTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, o.config.AgentTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator: panic in agent",
				"agent_id", agent.ID(),
				"panic", r)
			findings = nil
			err = fmt.Errorf("agent %s panicked: %v", agent.ID(), r)
		}
	}()

	findings, err = agent.Run(attemptCtx, model, deps)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded {
		err = agents.Recoverable(fmt.Errorf("agent %s timed out after %s", agent.ID(), o.config.AgentTimeout))
	}
	return findings, err
}

func (o *Orchestrator) observe(agentID string, status agents.Status, d time.Duration, retries int) {
	if o.observer != nil {
		o.observer.AgentFinished(agentID, status, d, retries)
	}
}
