package report

import (
	"fmt"
	"time"

	"github.com/repolens/repolens/analysis/agents"
)

// AssemblyError reports an internal contract violation between the
// orchestrator and the assembler: a missing section or dangling lineage.
// Seeing one is a bug, not an input problem.
type AssemblyError struct {
	Reason string
}

func (e *AssemblyError) Error() string {
	return "report assembly: " + e.Reason
}

// sectionOrder fixes the report layout independently of agent finish order.
var sectionOrder = []string{
	agents.AgentStructural,
	agents.AgentPattern,
	agents.AgentSmell,
	agents.AgentRefactoring,
}

// sectionUpstream lists, per agent, the transitive upstream agents in the
// fixed graph. Lineage may only point at findings from these sections; a
// sibling or downstream reference is a contract violation.
var sectionUpstream = map[string][]string{
	agents.AgentStructural:  {},
	agents.AgentPattern:     {agents.AgentStructural},
	agents.AgentSmell:       {agents.AgentStructural},
	agents.AgentRefactoring: {agents.AgentPattern, agents.AgentSmell, agents.AgentStructural},
}

// Assembler merges agent results into a Report.
type Assembler struct {
	now func() time.Time
}

// NewAssembler creates an assembler using wall-clock time for GeneratedAt.
func NewAssembler() *Assembler {
	return &Assembler{now: func() time.Time { return time.Now().UTC() }}
}

// Assemble builds the report for one run. The result map must contain a
// terminal result for every known agent; lineage references must resolve to
// kept findings of strictly upstream sections.
func (a *Assembler) Assemble(repositoryID string, results map[string]agents.RunResult) (*Report, error) {
	sections := make([]agents.RunResult, 0, len(sectionOrder))
	// Kept (post-dedup) finding IDs per agent. A reference to a dropped
	// duplicate must fail validation like any other dangling reference.
	kept := make(map[string]map[string]bool, len(sectionOrder))

	for _, agentID := range sectionOrder {
		res, ok := results[agentID]
		if !ok {
			return nil, &AssemblyError{Reason: fmt.Sprintf("no result for agent %q", agentID)}
		}
		res.Findings = dedupe(res.Findings)
		ids := make(map[string]bool, len(res.Findings))
		for _, f := range res.Findings {
			ids[f.ID] = true
		}
		kept[agentID] = ids
		sections = append(sections, res)
	}

	for _, section := range sections {
		upstream := sectionUpstream[section.AgentID]
		for _, f := range section.Findings {
			for _, ref := range f.ProducedFrom {
				resolved := false
				for _, up := range upstream {
					if kept[up][ref] {
						resolved = true
						break
					}
				}
				if !resolved {
					return nil, &AssemblyError{
						Reason: fmt.Sprintf("finding %s references %s, which is not an upstream finding", f.ID, ref),
					}
				}
			}
		}
	}

	report := &Report{
		RepositoryID:  repositoryID,
		OverallStatus: overallStatus(sections),
		Sections:      sections,
		GeneratedAt:   a.now(),
	}
	report.Summary = summarize(sections)
	return report, nil
}

// dedupe drops repeated findings within one section, keyed by subject and
// message. The first occurrence wins so finding IDs stay stable.
func dedupe(findings []agents.Finding) []agents.Finding {
	if len(findings) < 2 {
		return findings
	}
	type key struct {
		agentID string
		subject string
		message string
	}
	seen := make(map[key]bool, len(findings))
	out := findings[:0:0]
	for _, f := range findings {
		k := key{agentID: f.AgentID, subject: f.SubjectSymbol, message: f.Message}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

// overallStatus derives the run outcome from the section states. Without a
// structural baseline nothing downstream is trustworthy, so a failed or
// skipped structural section fails the whole run.
func overallStatus(sections []agents.RunResult) Status {
	allOK := true
	for _, s := range sections {
		if s.Succeeded() {
			continue
		}
		allOK = false
		if s.AgentID == agents.AgentStructural {
			return StatusFailed
		}
	}
	if allOK {
		return StatusComplete
	}
	return StatusPartial
}
