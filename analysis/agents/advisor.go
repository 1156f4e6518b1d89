package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/repolens/repolens/analysis/codemodel"
	"github.com/repolens/repolens/analysis/llm"
)

// AdvisorAgent proposes remediations for smell findings of warning severity
// or worse. Which findings it emits is decided purely by severity thresholds
// and the remediation catalog; the LLM gateway only polishes the phrasing, so
// a gateway outage degrades wording, never correctness.
type AdvisorAgent struct {
	gateway     llm.Gateway
	maxLLMCalls int
}

// AdvisorOption customizes the refactoring advisor.
type AdvisorOption func(*AdvisorAgent)

// WithAdvisorLLMCalls bounds phrasing calls per run.
func WithAdvisorLLMCalls(n int) AdvisorOption {
	return func(a *AdvisorAgent) {
		if n >= 0 {
			a.maxLLMCalls = n
		}
	}
}

// NewAdvisor creates the refactoring advisor. A nil gateway keeps the catalog
// phrasing as-is.
func NewAdvisor(gateway llm.Gateway, opts ...AdvisorOption) *AdvisorAgent {
	a := &AdvisorAgent{gateway: gateway, maxLLMCalls: defaultMaxLLMCalls}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AdvisorAgent) ID() string { return AgentRefactoring }

func (a *AdvisorAgent) Dependencies() []string {
	return []string{AgentPattern, AgentSmell}
}

func (a *AdvisorAgent) Run(ctx context.Context, model *codemodel.CodeModel, deps map[string]RunResult) ([]Finding, error) {
	if model == nil {
		return nil, Fatal(errors.New("advisor: nil code model"))
	}

	smells := dependencyFindings(deps, AgentSmell)
	patternsByPath := patternFindingsByPath(dependencyFindings(deps, AgentPattern))
	ids := newMinter(AgentRefactoring)
	var findings []Finding
	llmCalls := 0

	for _, smell := range smells {
		if !smell.Severity.AtLeast(SeverityWarning) {
			continue
		}

		technique := remediationFor(smell.Evidence["rule"])
		advice := technique.Advice
		lineage := []string{smell.ID}
		evidence := map[string]string{
			"technique": technique.Name,
			"smell":     smell.Message,
		}
		if path, ok := smell.Evidence["path"]; ok {
			evidence["path"] = path
			if related, ok := patternsByPath[path]; ok {
				lineage = append(lineage, related.ID)
				evidence["related_pattern"] = related.Evidence["pattern"]
			}
		}

		if a.gateway != nil && llmCalls < a.maxLLMCalls {
			llmCalls++
			if polished, err := a.rephrase(ctx, smell, technique); err != nil {
				// Phrasing only; keep the catalog text on any gateway error.
				slog.Debug("advisor: phrasing degraded to catalog text", "error", err)
			} else if polished != "" {
				advice = polished
			}
		}

		findings = append(findings, Finding{
			ID:            ids.next(),
			AgentID:       AgentRefactoring,
			Severity:      smell.Severity,
			SubjectSymbol: smell.SubjectSymbol,
			Message:       fmt.Sprintf("%s: %s", technique.Name, advice),
			Evidence:      evidence,
			ProducedFrom:  lineage,
		})
	}

	return findings, nil
}

func (a *AdvisorAgent) rephrase(ctx context.Context, smell Finding, technique Technique) (string, error) {
	prompt := fmt.Sprintf(
		"A code analysis flagged %q on %q. The suggested remediation is %q: %s\n"+
			"Rewrite the remediation as one actionable sentence for a developer. Reply with the sentence only.",
		smell.Message, smell.SubjectSymbol, technique.Name, technique.Advice,
	)
	answer, err := a.gateway.Complete(ctx, prompt, llm.Constraints{MaxTokens: 80})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// patternFindingsByPath indexes pattern findings by file path; the first
// pattern found for a path wins, keeping the choice deterministic.
func patternFindingsByPath(patterns []Finding) map[string]Finding {
	byPath := make(map[string]Finding)
	for _, f := range patterns {
		path, ok := f.Evidence["path"]
		if !ok {
			continue
		}
		if _, exists := byPath[path]; !exists {
			byPath[path] = f
		}
	}
	return byPath
}
