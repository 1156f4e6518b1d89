package agents

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/repolens/repolens/analysis/codemodel"
	"github.com/repolens/repolens/analysis/llm"
)

// confidentThreshold separates matches the heuristic trusts on its own from
// ambiguous ones worth an LLM opinion.
const confidentThreshold = 0.7

// defaultMaxLLMCalls bounds gateway calls per analysis run.
const defaultMaxLLMCalls = 5

// PatternAgent matches symbol shapes against a catalog of named design
// patterns. Ambiguous matches may be disambiguated through the LLM gateway,
// with a bounded number of calls per run; the emission of confident matches
// never depends on the gateway.
type PatternAgent struct {
	catalog     *Catalog
	gateway     llm.Gateway
	maxLLMCalls int
}

// PatternOption customizes the pattern agent.
type PatternOption func(*PatternAgent)

// WithPatternCatalog replaces the embedded catalog.
func WithPatternCatalog(c *Catalog) PatternOption {
	return func(a *PatternAgent) { a.catalog = c }
}

// WithMaxLLMCalls bounds disambiguation calls per run.
func WithMaxLLMCalls(n int) PatternOption {
	return func(a *PatternAgent) {
		if n >= 0 {
			a.maxLLMCalls = n
		}
	}
}

// NewPattern creates the pattern recognition agent. A nil gateway disables
// disambiguation: ambiguous matches are then emitted with their heuristic
// confidence.
func NewPattern(gateway llm.Gateway, opts ...PatternOption) *PatternAgent {
	a := &PatternAgent{
		catalog:     DefaultCatalog(),
		gateway:     gateway,
		maxLLMCalls: defaultMaxLLMCalls,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *PatternAgent) ID() string { return AgentPattern }

func (a *PatternAgent) Dependencies() []string { return []string{AgentStructural} }

func (a *PatternAgent) Run(ctx context.Context, model *codemodel.CodeModel, deps map[string]RunResult) ([]Finding, error) {
	if model == nil {
		return nil, Fatal(errors.New("pattern: nil code model"))
	}

	metricsByPath := fileMetricFindings(dependencyFindings(deps, AgentStructural))
	ids := newMinter(AgentPattern)
	var findings []Finding
	llmCalls := 0

	for _, file := range model.Files() {
		for _, spec := range a.catalog.Patterns {
			matched := spec.matchFile(file)
			if len(matched) < spec.MinMatches {
				continue
			}

			confidence := spec.Confidence + 0.05*float64(len(matched)-spec.MinMatches)
			if confidence > 0.95 {
				confidence = 0.95
			}
			disambiguated := false

			if confidence < confidentThreshold && a.gateway != nil && llmCalls < a.maxLLMCalls {
				llmCalls++
				keep, err := a.disambiguate(ctx, file, spec, matched)
				if err != nil {
					// The gateway decides emission for ambiguous matches, so
					// its failure is the agent's failure; the orchestrator
					// retries recoverable ones.
					return nil, Recoverable(fmt.Errorf("pattern: disambiguation of %s in %s: %w", spec.Name, file.Path, err))
				}
				if !keep {
					continue
				}
				confidence = confidentThreshold
				disambiguated = true
			}

			evidence := map[string]string{
				"pattern":    spec.Name,
				"path":       file.Path,
				"confidence": strconv.FormatFloat(confidence, 'f', 2, 64),
				"symbols":    strings.Join(matched, ", "),
			}
			if disambiguated {
				evidence["llm_disambiguated"] = "true"
			}

			finding := Finding{
				ID:            ids.next(),
				AgentID:       AgentPattern,
				Severity:      SeverityInfo,
				SubjectSymbol: fileSubject(file),
				Message:       fmt.Sprintf("%s pattern detected", strings.ToLower(spec.Name)),
				Evidence:      evidence,
			}
			if basis, ok := metricsByPath[file.Path]; ok {
				finding.ProducedFrom = []string{basis}
			}
			findings = append(findings, finding)
		}
	}

	return findings, nil
}

// disambiguate asks the gateway for a yes/no judgment on an ambiguous match.
func (a *PatternAgent) disambiguate(ctx context.Context, file codemodel.FileNode, spec PatternSpec, matched []string) (bool, error) {
	prompt := fmt.Sprintf(
		"File %q declares the symbols: %s.\n"+
			"Pattern under consideration: %s (%s).\n"+
			"Does this file plausibly implement that design pattern? Answer yes or no.",
		file.Path, strings.Join(matched, ", "), spec.Name, spec.Description,
	)
	answer, err := a.gateway.Complete(ctx, prompt, llm.Constraints{MaxTokens: 8})
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes"), nil
}

// fileMetricFindings indexes structural "file metrics" findings by path so
// downstream findings can reference them as lineage.
func fileMetricFindings(structural []Finding) map[string]string {
	byPath := make(map[string]string)
	for _, f := range structural {
		if f.Message != "file metrics" {
			continue
		}
		if p, ok := f.Evidence["path"]; ok {
			byPath[p] = f.ID
		}
	}
	return byPath
}
