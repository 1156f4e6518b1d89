// Package agents defines the analysis agent contract and the four built-in
// variants: structural, pattern, smell, and refactoring. Agents are pure with
// respect to shared state: they read the code model and their dependencies'
// results, and return findings instead of writing through shared memory.
package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/repolens/repolens/analysis/codemodel"
)

// Well-known agent identifiers. The set is closed: the dependency graph is
// validated against it at startup.
const (
	AgentStructural  = "structural"
	AgentPattern     = "pattern"
	AgentSmell       = "smell"
	AgentRefactoring = "refactoring"
)

// Severity grades a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// rank orders severities for threshold comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// Finding is one reported observation. Findings are immutable once emitted.
type Finding struct {
	// ID is deterministic per run: "<agent>-<sequence>". Determinism matters
	// because downstream lineage and report bytes must not depend on timing.
	ID            string            `json:"id"`
	AgentID       string            `json:"agent_id"`
	Severity      Severity          `json:"severity"`
	SubjectSymbol string            `json:"subject_symbol,omitempty"`
	Message       string            `json:"message"`
	Evidence      map[string]string `json:"evidence,omitempty"`
	// ProducedFrom carries lineage to findings of upstream agents.
	ProducedFrom []string `json:"produced_from,omitempty"`
}

// Status is the terminal state of one agent within a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// RunResult is the outcome of one agent in one analysis run.
type RunResult struct {
	AgentID    string    `json:"agent_id"`
	Status     Status    `json:"status"`
	Findings   []Finding `json:"findings"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the agent produced a usable finding set.
func (r RunResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Agent is the polymorphic analysis contract. Run receives the immutable code
// model and the results of the agent's declared dependencies only; it must
// treat a failed dependency's finding set as empty.
type Agent interface {
	ID() string
	Dependencies() []string
	Run(ctx context.Context, model *codemodel.CodeModel, deps map[string]RunResult) ([]Finding, error)
}

// minter hands out deterministic finding IDs in emission order.
type minter struct {
	agentID string
	seq     int
}

func newMinter(agentID string) *minter {
	return &minter{agentID: agentID}
}

func (m *minter) next() string {
	m.seq++
	return fmt.Sprintf("%s-%03d", m.agentID, m.seq)
}

// dependencyFindings flattens the findings of a dependency, returning nil for
// a missing or failed dependency so callers degrade instead of crashing.
func dependencyFindings(deps map[string]RunResult, agentID string) []Finding {
	res, ok := deps[agentID]
	if !ok || !res.Succeeded() {
		return nil
	}
	return res.Findings
}
