package agents

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/repolens/repolens/analysis/codemodel"
)

// SmellAgent applies threshold rules to per-symbol and per-file facts. It
// consumes the structural agent's findings but is independent of the pattern
// agent, which is what lets the two run concurrently.
type SmellAgent struct {
	rules []compiledRule
}

// NewSmell creates the smell detection agent. Passing nil rules selects the
// defaults. Rule compilation errors are configuration errors; fail fast.
func NewSmell(rules []SmellRule) (*SmellAgent, error) {
	if rules == nil {
		rules = DefaultSmellRules()
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return &SmellAgent{rules: compiled}, nil
}

func (a *SmellAgent) ID() string { return AgentSmell }

func (a *SmellAgent) Dependencies() []string { return []string{AgentStructural} }

func (a *SmellAgent) Run(ctx context.Context, model *codemodel.CodeModel, deps map[string]RunResult) ([]Finding, error) {
	if model == nil {
		return nil, Fatal(errors.New("smell: nil code model"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metricsByPath := fileMetricFindings(dependencyFindings(deps, AgentStructural))
	duplicates := duplicateSymbolCounts(model)
	ids := newMinter(AgentSmell)
	var findings []Finding

	for _, file := range model.Files() {
		lineage := lineageFor(metricsByPath, file.Path)
		fileLineCount := fileLines(file)

		for _, sym := range file.Symbols {
			if sym.Kind == codemodel.SymbolModule {
				continue
			}
			activation := map[string]any{
				"name":       sym.QualifiedName,
				"kind":       string(sym.Kind),
				"lines":      int64(sym.Span.Lines()),
				"file_lines": int64(fileLineCount),
			}
			for _, rule := range a.rules {
				if rule.Scope != ScopeSymbol {
					continue
				}
				finding, matched, err := a.apply(rule, activation, ids, sym.QualifiedName, map[string]string{
					"rule":  rule.Name,
					"path":  file.Path,
					"lines": strconv.Itoa(sym.Span.Lines()),
				})
				if err != nil {
					return nil, Fatal(fmt.Errorf("smell: rule %q on %s: %w", rule.Name, sym.QualifiedName, err))
				}
				if matched {
					finding.ProducedFrom = lineage
					findings = append(findings, finding)
				}
			}
		}

		funcs, classes := symbolKindCounts(file)
		activation := map[string]any{
			"path":       file.Path,
			"lines":      int64(fileLineCount),
			"functions":  int64(funcs),
			"classes":    int64(classes),
			"duplicates": int64(duplicates[file.Path]),
		}
		for _, rule := range a.rules {
			if rule.Scope != ScopeFile {
				continue
			}
			finding, matched, err := a.apply(rule, activation, ids, fileSubject(file), map[string]string{
				"rule":       rule.Name,
				"path":       file.Path,
				"lines":      strconv.Itoa(fileLineCount),
				"functions":  strconv.Itoa(funcs),
				"duplicates": strconv.Itoa(duplicates[file.Path]),
			})
			if err != nil {
				return nil, Fatal(fmt.Errorf("smell: rule %q on %s: %w", rule.Name, file.Path, err))
			}
			if matched {
				finding.ProducedFrom = lineage
				findings = append(findings, finding)
			}
		}
	}

	return findings, nil
}

func (a *SmellAgent) apply(rule compiledRule, activation map[string]any, ids *minter, subject string, evidence map[string]string) (Finding, bool, error) {
	matched, err := eval(rule.trigger, activation)
	if err != nil || !matched {
		return Finding{}, false, err
	}

	severity := rule.Severity
	if rule.escalate != nil {
		escalated, err := eval(rule.escalate, activation)
		if err != nil {
			return Finding{}, false, err
		}
		if escalated {
			severity = SeverityCritical
		}
	}

	return Finding{
		ID:            ids.next(),
		AgentID:       AgentSmell,
		Severity:      severity,
		SubjectSymbol: subject,
		Message:       rule.Message,
		Evidence:      evidence,
	}, true, nil
}

func lineageFor(metricsByPath map[string]string, path string) []string {
	if id, ok := metricsByPath[path]; ok {
		return []string{id}
	}
	return nil
}

func symbolKindCounts(file codemodel.FileNode) (funcs, classes int) {
	for _, s := range file.Symbols {
		switch s.Kind {
		case codemodel.SymbolFunction:
			funcs++
		case codemodel.SymbolClass:
			classes++
		}
	}
	return funcs, classes
}

// duplicateSymbolCounts counts, per file, how many of its symbol base names
// also appear in other files. A crude duplication-ratio signal.
func duplicateSymbolCounts(model *codemodel.CodeModel) map[string]int {
	owners := map[string]map[string]struct{}{}
	for _, file := range model.Files() {
		for _, s := range file.Symbols {
			if s.Kind == codemodel.SymbolModule {
				continue
			}
			name := baseName(s.QualifiedName)
			if owners[name] == nil {
				owners[name] = map[string]struct{}{}
			}
			owners[name][file.Path] = struct{}{}
		}
	}

	counts := map[string]int{}
	for _, file := range model.Files() {
		seen := map[string]struct{}{}
		for _, s := range file.Symbols {
			if s.Kind == codemodel.SymbolModule {
				continue
			}
			name := baseName(s.QualifiedName)
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			if len(owners[name]) > 1 {
				counts[file.Path]++
			}
		}
	}
	return counts
}
