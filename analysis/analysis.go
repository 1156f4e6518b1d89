// Package analysis wires ingestion, the agent orchestrator, report assembly
// and persistence into one service. The HTTP server and the CLI both drive
// analyses through it.
package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/repolens/repolens/analysis/agents"
	"github.com/repolens/repolens/analysis/ingest"
	"github.com/repolens/repolens/analysis/llm"
	"github.com/repolens/repolens/analysis/metrics"
	"github.com/repolens/repolens/analysis/orchestrator"
	"github.com/repolens/repolens/analysis/report"
	"github.com/repolens/repolens/internal/profile"
	"github.com/repolens/repolens/store"
)

// Service runs analyses end to end. Store and exporter are optional; when nil
// the service skips persistence and metrics respectively, which is how the
// one-shot CLI path uses it.
type Service struct {
	profile   *profile.Profile
	store     *store.Store
	exporter  *metrics.Exporter
	gateway   llm.Gateway
	registry  *orchestrator.RunRegistry
	assembler *report.Assembler
}

// NewService builds a Service from the profile. The LLM gateway is only
// constructed when the profile carries credentials for one; without it the
// pattern and refactoring agents fall back to their catalog-only behavior.
func NewService(p *profile.Profile, st *store.Store, exporter *metrics.Exporter) (*Service, error) {
	s := &Service{
		profile:   p,
		store:     st,
		exporter:  exporter,
		registry:  orchestrator.NewRunRegistry(),
		assembler: report.NewAssembler(),
	}

	if p.IsLLMEnabled() {
		opts := []llm.Option{}
		if exporter != nil {
			model := p.LLMModel
			opts = append(opts,
				llm.WithTokenObserver(func(prompt, completion int) {
					exporter.ObserveTokens(model, prompt+completion)
				}),
				llm.WithCacheObserver(func(hit bool) {
					if hit {
						exporter.ObserveCacheHit(model)
					}
				}),
			)
		}
		gw, err := llm.NewGateway(&llm.Config{
			Provider: p.LLMProvider,
			Model:    p.LLMModel,
			APIKey:   p.LLMAPIKey,
			BaseURL:  p.LLMBaseURL,
			Timeout:  p.LLMTimeout,
		}, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "analysis: failed to build llm gateway")
		}
		s.gateway = gw
		slog.Info("analysis: llm gateway enabled", "provider", p.LLMProvider, "model", p.LLMModel)
	} else {
		slog.Info("analysis: no llm credentials, agents run in catalog-only mode")
	}

	return s, nil
}

// buildAgents returns a fresh agent set for one run. Agents keep per-run
// state (finding counters, llm budgets), so they are never shared.
func (s *Service) buildAgents() ([]agents.Agent, error) {
	smell, err := agents.NewSmell(agents.DefaultSmellRules())
	if err != nil {
		return nil, err
	}
	return []agents.Agent{
		agents.NewStructural(),
		agents.NewPattern(s.gateway),
		smell,
		agents.NewAdvisor(s.gateway),
	}, nil
}

func (s *Service) orchestratorConfig() *orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	if s.profile.MaxParallelAgents > 0 {
		cfg.MaxParallel = s.profile.MaxParallelAgents
	}
	if s.profile.MaxAgentRetries > 0 {
		cfg.MaxRetries = s.profile.MaxAgentRetries
	}
	return cfg
}

// Analyze runs one full analysis synchronously: ingest the source, execute
// the agent graph and assemble the report.
func (s *Service) Analyze(ctx context.Context, source string) (*report.Report, error) {
	ingestor := ingest.ForSource(source, ingest.Options{MaxFiles: s.profile.MaxIngestFiles})
	model, err := ingestor.Ingest(ctx, source)
	if err != nil {
		return nil, err
	}

	list, err := s.buildAgents()
	if err != nil {
		return nil, err
	}
	opts := []orchestrator.Option{}
	if s.exporter != nil {
		opts = append(opts, orchestrator.WithObserver(s.exporter))
	}
	orch, err := orchestrator.New(list, s.orchestratorConfig(), opts...)
	if err != nil {
		return nil, err
	}

	results, err := orch.Execute(ctx, model)
	if err != nil {
		return nil, err
	}

	return s.assembler.Assemble(model.RepositoryID(), results)
}

// StartAnalysis launches an analysis in the background and returns its run
// handle immediately. The run transitions through the registry phases; poll
// it with GetRun.
func (s *Service) StartAnalysis(ctx context.Context, repositoryID, source string) *orchestrator.Run {
	run := s.registry.Create(repositoryID)

	go func() {
		// Detach from the request context: the analysis outlives the
		// HTTP request that started it.
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		run.SetRunning()
		started := time.Now()

		rep, err := s.Analyze(runCtx, source)
		if err != nil {
			slog.Error("analysis: run failed", "run_id", run.ID, "repository_id", repositoryID, "err", err)
			run.SetFailed(err)
			s.recordRun(run)
			return
		}

		run.SetCompleted(rep)
		s.recordRun(run)
		s.persistReport(runCtx, repositoryID, rep)
		slog.Info("analysis: run finished",
			"run_id", run.ID,
			"repository_id", repositoryID,
			"status", rep.OverallStatus,
			"duration", time.Since(started).Round(time.Millisecond),
		)
	}()

	return run
}

// GetRun looks up a run by ID.
func (s *Service) GetRun(id string) (*orchestrator.Run, bool) {
	return s.registry.Get(id)
}

func (s *Service) recordRun(run *orchestrator.Run) {
	if s.exporter != nil {
		s.exporter.RecordRun(string(run.Phase()))
	}
}

func (s *Service) persistReport(ctx context.Context, repositoryID string, rep *report.Report) {
	if s.store == nil {
		return
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		slog.Error("analysis: failed to encode report", "repository_id", repositoryID, "err", err)
		return
	}
	if _, err := s.store.CreateReportRecord(ctx, &store.ReportRecord{
		RepositoryID: repositoryID,
		Status:       string(rep.OverallStatus),
		Payload:      string(payload),
		Markdown:     rep.Markdown(),
	}); err != nil {
		slog.Error("analysis: failed to persist report", "repository_id", repositoryID, "err", err)
	}
}
