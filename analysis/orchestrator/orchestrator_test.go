package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/repolens/analysis/agents"
	"github.com/repolens/repolens/analysis/codemodel"
)

// fakeAgent is a scriptable agent for scheduler tests.
type fakeAgent struct {
	id   string
	deps []string
	run  func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error)
}

func (f *fakeAgent) ID() string             { return f.id }
func (f *fakeAgent) Dependencies() []string { return f.deps }

func (f *fakeAgent) Run(ctx context.Context, _ *codemodel.CodeModel, deps map[string]agents.RunResult) ([]agents.Finding, error) {
	if f.run == nil {
		return nil, nil
	}
	return f.run(ctx, deps)
}

// recorder notes agent start order under a lock.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) note(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
}

func (r *recorder) before(t *testing.T, first, second string) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	fi, si := -1, -1
	for i, id := range r.order {
		if id == first && fi < 0 {
			fi = i
		}
		if id == second && si < 0 {
			si = i
		}
	}
	require.GreaterOrEqual(t, fi, 0, "%s never started", first)
	require.GreaterOrEqual(t, si, 0, "%s never started", second)
	assert.Less(t, fi, si, "%s must start before %s", first, second)
}

func emptyModel() *codemodel.CodeModel {
	return codemodel.Build("repo-test", nil)
}

func pipelineDeps() map[string][]string {
	return map[string][]string{
		agents.AgentStructural:  nil,
		agents.AgentPattern:     {agents.AgentStructural},
		agents.AgentSmell:       {agents.AgentStructural},
		agents.AgentRefactoring: {agents.AgentPattern, agents.AgentSmell},
	}
}

func pipeline(rec *recorder, overrides map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error)) []agents.Agent {
	var list []agents.Agent
	for id, deps := range pipelineDeps() {
		agent := &fakeAgent{id: id, deps: deps}
		run := overrides[id]
		agent.run = func(ctx context.Context, depRes map[string]agents.RunResult) ([]agents.Finding, error) {
			if rec != nil {
				rec.note(agent.id)
			}
			if run != nil {
				return run(ctx, depRes)
			}
			return nil, nil
		}
		list = append(list, agent)
	}
	return list
}

func fastConfig() *Config {
	return &Config{
		MaxParallel:  4,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		AgentTimeout: time.Second,
	}
}

func TestExecuteRespectsDependencyOrder(t *testing.T) {
	rec := &recorder{}
	o, err := New(pipeline(rec, nil), fastConfig())
	require.NoError(t, err)

	results, err := o.Execute(context.Background(), emptyModel())
	require.NoError(t, err)
	require.Len(t, results, 4)
	for id, res := range results {
		assert.Equal(t, agents.StatusSucceeded, res.Status, id)
	}

	rec.before(t, agents.AgentStructural, agents.AgentPattern)
	rec.before(t, agents.AgentStructural, agents.AgentSmell)
	rec.before(t, agents.AgentPattern, agents.AgentRefactoring)
	rec.before(t, agents.AgentSmell, agents.AgentRefactoring)
}

func TestExecutePassesOnlyDeclaredDependencies(t *testing.T) {
	var seen map[string]agents.RunResult
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentPattern: func(_ context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error) {
			seen = deps
			return nil, nil
		},
	}
	o, err := New(pipeline(nil, overrides), fastConfig())
	require.NoError(t, err)

	_, err = o.Execute(context.Background(), emptyModel())
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Contains(t, seen, agents.AgentStructural)
}

func TestExecuteSmellFailureSkipsOnlyRefactoring(t *testing.T) {
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentSmell: func(context.Context, map[string]agents.RunResult) ([]agents.Finding, error) {
			return nil, errors.New("smell exploded")
		},
	}
	o, err := New(pipeline(nil, overrides), fastConfig())
	require.NoError(t, err)

	results, err := o.Execute(context.Background(), emptyModel())
	require.NoError(t, err, "a single agent failure must not abort the run")

	assert.Equal(t, agents.StatusSucceeded, results[agents.AgentStructural].Status)
	assert.Equal(t, agents.StatusSucceeded, results[agents.AgentPattern].Status)
	assert.Equal(t, agents.StatusFailed, results[agents.AgentSmell].Status)
	assert.Equal(t, agents.StatusSkipped, results[agents.AgentRefactoring].Status)
	assert.Contains(t, results[agents.AgentRefactoring].Err, agents.AgentSmell)
}

func TestExecuteRootFailureSkipsEverythingDownstream(t *testing.T) {
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentStructural: func(context.Context, map[string]agents.RunResult) ([]agents.Finding, error) {
			return nil, errors.New("model unreadable")
		},
	}
	o, err := New(pipeline(nil, overrides), fastConfig())
	require.NoError(t, err)

	results, err := o.Execute(context.Background(), emptyModel())
	require.NoError(t, err)

	assert.Equal(t, agents.StatusFailed, results[agents.AgentStructural].Status)
	for _, id := range []string{agents.AgentPattern, agents.AgentSmell, agents.AgentRefactoring} {
		assert.Equal(t, agents.StatusSkipped, results[id].Status, id)
	}
}

func TestExecuteRetriesRecoverableErrors(t *testing.T) {
	var attempts atomic.Int64
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentPattern: func(context.Context, map[string]agents.RunResult) ([]agents.Finding, error) {
			if attempts.Add(1) < 2 {
				return nil, agents.Recoverable(errors.New("gateway hiccup"))
			}
			return nil, nil
		},
	}
	o, err := New(pipeline(nil, overrides), fastConfig())
	require.NoError(t, err)

	results, err := o.Execute(context.Background(), emptyModel())
	require.NoError(t, err)
	assert.Equal(t, int64(2), attempts.Load())
	assert.Equal(t, agents.StatusSucceeded, results[agents.AgentPattern].Status)
	assert.Equal(t, agents.StatusSucceeded, results[agents.AgentRefactoring].Status)
}

func TestExecuteBoundsRetries(t *testing.T) {
	var attempts atomic.Int64
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentPattern: func(context.Context, map[string]agents.RunResult) ([]agents.Finding, error) {
			attempts.Add(1)
			return nil, agents.Recoverable(errors.New("still down"))
		},
	}
	cfg := fastConfig()
	cfg.MaxRetries = 2
	o, err := New(pipeline(nil, overrides), cfg)
	require.NoError(t, err)

	results, err := o.Execute(context.Background(), emptyModel())
	require.NoError(t, err)

	// First attempt plus two retries, then the section fails while the rest
	// of the run proceeds.
	assert.Equal(t, int64(3), attempts.Load())
	assert.Equal(t, agents.StatusFailed, results[agents.AgentPattern].Status)
	assert.Equal(t, agents.StatusSucceeded, results[agents.AgentSmell].Status)
	assert.Equal(t, agents.StatusSkipped, results[agents.AgentRefactoring].Status)
}

func TestExecuteDoesNotRetryPlainErrors(t *testing.T) {
	var attempts atomic.Int64
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentSmell: func(context.Context, map[string]agents.RunResult) ([]agents.Finding, error) {
			attempts.Add(1)
			return nil, errors.New("bad rule")
		},
	}
	o, err := New(pipeline(nil, overrides), fastConfig())
	require.NoError(t, err)

	_, err = o.Execute(context.Background(), emptyModel())
	require.NoError(t, err)
	assert.Equal(t, int64(1), attempts.Load())
}

func TestExecuteFatalAbortsRun(t *testing.T) {
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentStructural: func(context.Context, map[string]agents.RunResult) ([]agents.Finding, error) {
			return nil, agents.Fatal(errors.New("nil model"))
		},
	}
	o, err := New(pipeline(nil, overrides), fastConfig())
	require.NoError(t, err)

	results, err := o.Execute(context.Background(), emptyModel())
	require.Error(t, err)
	assert.True(t, agents.IsFatal(err))
	assert.Equal(t, agents.StatusFailed, results[agents.AgentStructural].Status)
	for _, id := range []string{agents.AgentPattern, agents.AgentSmell, agents.AgentRefactoring} {
		assert.Equal(t, agents.StatusSkipped, results[id].Status, id)
	}
}

func TestExecuteAgentTimeoutIsRetried(t *testing.T) {
	var attempts atomic.Int64
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentPattern: func(ctx context.Context, _ map[string]agents.RunResult) ([]agents.Finding, error) {
			attempts.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	cfg := fastConfig()
	cfg.AgentTimeout = 10 * time.Millisecond
	cfg.MaxRetries = 1
	o, err := New(pipeline(nil, overrides), cfg)
	require.NoError(t, err)

	results, err := o.Execute(context.Background(), emptyModel())
	require.NoError(t, err)
	assert.Equal(t, int64(2), attempts.Load())
	assert.Equal(t, agents.StatusFailed, results[agents.AgentPattern].Status)
	assert.Contains(t, results[agents.AgentPattern].Err, "timed out")
	// The slow pattern agent never blocks the smell branch.
	assert.Equal(t, agents.StatusSucceeded, results[agents.AgentSmell].Status)
}

func TestExecuteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentStructural: func(ctx context.Context, _ map[string]agents.RunResult) ([]agents.Finding, error) {
			cancel()
			return nil, nil
		},
	}
	o, err := New(pipeline(nil, overrides), fastConfig())
	require.NoError(t, err)

	results, err := o.Execute(ctx, emptyModel())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	for _, id := range []string{agents.AgentPattern, agents.AgentSmell, agents.AgentRefactoring} {
		assert.Equal(t, agents.StatusSkipped, results[id].Status, id)
	}
}

func TestExecuteCancellationDetachesInFlightAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	observed := make(chan error, 1)
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentStructural: func(ctx context.Context, _ map[string]agents.RunResult) ([]agents.Finding, error) {
			cancel()
			// The attempt context must survive run cancellation; only the
			// per-attempt timeout ends this wait.
			<-ctx.Done()
			observed <- ctx.Err()
			return nil, ctx.Err()
		},
	}
	cfg := fastConfig()
	cfg.AgentTimeout = 20 * time.Millisecond
	o, err := New(pipeline(nil, overrides), cfg)
	require.NoError(t, err)

	results, err := o.Execute(ctx, emptyModel())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, context.DeadlineExceeded, <-observed)
	assert.Equal(t, agents.StatusFailed, results[agents.AgentStructural].Status)
	assert.Contains(t, results[agents.AgentStructural].Err, "timed out")
	for _, id := range []string{agents.AgentPattern, agents.AgentSmell, agents.AgentRefactoring} {
		assert.Equal(t, agents.StatusSkipped, results[id].Status, id)
	}
}

func TestExecutePanicFailsAgentWithoutAborting(t *testing.T) {
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentSmell: func(context.Context, map[string]agents.RunResult) ([]agents.Finding, error) {
			panic("rule table corrupted")
		},
	}
	o, err := New(pipeline(nil, overrides), fastConfig())
	require.NoError(t, err)

	results, err := o.Execute(context.Background(), emptyModel())
	require.NoError(t, err)
	assert.Equal(t, agents.StatusFailed, results[agents.AgentSmell].Status)
	assert.Contains(t, results[agents.AgentSmell].Err, "panicked")
	assert.Equal(t, agents.StatusSucceeded, results[agents.AgentPattern].Status)
}

func TestNewRejectsDuplicateAgents(t *testing.T) {
	_, err := New([]agents.Agent{
		&fakeAgent{id: "a"},
		&fakeAgent{id: "a"},
	}, fastConfig())
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewRejectsCyclicAgents(t *testing.T) {
	_, err := New([]agents.Agent{
		&fakeAgent{id: "a", deps: []string{"b"}},
		&fakeAgent{id: "b", deps: []string{"a"}},
	}, fastConfig())
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

type countingObserver struct {
	mu       sync.Mutex
	finished map[string]agents.Status
	retries  int
}

func (c *countingObserver) AgentFinished(agentID string, status agents.Status, _ time.Duration, retries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished == nil {
		c.finished = map[string]agents.Status{}
	}
	c.finished[agentID] = status
	c.retries += retries
}

func TestExecuteNotifiesObserver(t *testing.T) {
	var attempts atomic.Int64
	overrides := map[string]func(ctx context.Context, deps map[string]agents.RunResult) ([]agents.Finding, error){
		agents.AgentPattern: func(context.Context, map[string]agents.RunResult) ([]agents.Finding, error) {
			if attempts.Add(1) < 2 {
				return nil, agents.Recoverable(errors.New("flaky"))
			}
			return nil, nil
		},
	}
	obs := &countingObserver{}
	o, err := New(pipeline(nil, overrides), fastConfig(), WithObserver(obs))
	require.NoError(t, err)

	_, err = o.Execute(context.Background(), emptyModel())
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Len(t, obs.finished, 4)
	assert.Equal(t, 1, obs.retries)
}
