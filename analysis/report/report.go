// Package report assembles per-agent results into the final analysis report.
// Assembly is deterministic: the same result map always yields byte-identical
// section content, which is what makes reports diffable across runs.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/repolens/repolens/analysis/agents"
)

// Status is the overall outcome of an analysis run.
type Status string

const (
	// StatusComplete means every agent succeeded.
	StatusComplete Status = "complete"
	// StatusPartial means the structural baseline exists but at least one
	// downstream agent failed or was skipped.
	StatusPartial Status = "partial"
	// StatusFailed means the structural agent itself did not succeed, so no
	// meaningful analysis exists.
	StatusFailed Status = "failed"
)

// Summary condenses the report into a score and headline observations.
type Summary struct {
	QualityScore float64  `json:"quality_score"`
	Strengths    []string `json:"strengths,omitempty"`
	Concerns     []string `json:"concerns,omitempty"`
}

// Report is the final artifact of one analysis run.
type Report struct {
	RepositoryID  string             `json:"repository_id"`
	OverallStatus Status             `json:"overall_status"`
	Sections      []agents.RunResult `json:"sections"`
	Summary       Summary            `json:"summary"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

// Section returns the section for an agent, if present.
func (r *Report) Section(agentID string) (agents.RunResult, bool) {
	for _, s := range r.Sections {
		if s.AgentID == agentID {
			return s, true
		}
	}
	return agents.RunResult{}, false
}

// Markdown renders the report for human consumption. Section order and
// evidence key order are fixed, so the rendering is as reproducible as the
// report itself.
func (r *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Analysis Report: %s\n\n", r.RepositoryID)
	fmt.Fprintf(&b, "**Status:** %s  \n", r.OverallStatus)
	fmt.Fprintf(&b, "**Quality score:** %.1f/100\n\n", r.Summary.QualityScore)

	if len(r.Summary.Strengths) > 0 {
		b.WriteString("## Strengths\n\n")
		for _, s := range r.Summary.Strengths {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	if len(r.Summary.Concerns) > 0 {
		b.WriteString("## Concerns\n\n")
		for _, c := range r.Summary.Concerns {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	for _, section := range r.Sections {
		fmt.Fprintf(&b, "## %s\n\n", sectionTitle(section.AgentID))
		if !section.Succeeded() {
			fmt.Fprintf(&b, "_Section %s: %s_\n\n", section.Status, section.Err)
			continue
		}
		if len(section.Findings) == 0 {
			b.WriteString("No findings.\n\n")
			continue
		}
		for _, f := range section.Findings {
			fmt.Fprintf(&b, "- **[%s]** %s", f.Severity, f.Message)
			if f.SubjectSymbol != "" {
				fmt.Fprintf(&b, " (`%s`)", f.SubjectSymbol)
			}
			b.WriteString("\n")
			for _, key := range sortedKeys(f.Evidence) {
				fmt.Fprintf(&b, "  - %s: %s\n", key, f.Evidence[key])
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

func sectionTitle(agentID string) string {
	switch agentID {
	case agents.AgentStructural:
		return "Structural Analysis"
	case agents.AgentPattern:
		return "Design Patterns"
	case agents.AgentSmell:
		return "Code Smells"
	case agents.AgentRefactoring:
		return "Refactoring Suggestions"
	default:
		return agentID
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
