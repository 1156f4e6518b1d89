package agents

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/repolens/repolens/analysis/codemodel"
)

// File size buckets, in lines. Shares the original metric shape used by the
// report summary.
const (
	sizeSmallMax  = 100
	sizeMediumMax = 300
	sizeLargeMax  = 500

	// veryLargeFileLines is the threshold above which a file gets its own
	// warning finding.
	veryLargeFileLines = 600
)

// StructuralAgent computes repository-level and per-file metrics purely from
// the code model. It is a deterministic function of its input, which anchors
// the reproducibility of the whole report.
type StructuralAgent struct{}

// NewStructural creates the structural analysis agent.
func NewStructural() *StructuralAgent {
	return &StructuralAgent{}
}

func (a *StructuralAgent) ID() string { return AgentStructural }

func (a *StructuralAgent) Dependencies() []string { return nil }

func (a *StructuralAgent) Run(_ context.Context, model *codemodel.CodeModel, _ map[string]RunResult) ([]Finding, error) {
	if model == nil {
		return nil, Fatal(errors.New("structural: nil code model"))
	}

	ids := newMinter(AgentStructural)
	files := model.Files()
	findings := make([]Finding, 0, len(files)+8)

	findings = append(findings, a.structureSummary(ids, model))
	if f, ok := a.languageBreakdown(ids, files); ok {
		findings = append(findings, f)
	}
	findings = append(findings, a.complexityMetrics(ids, files))
	findings = append(findings, a.dependencyDensity(ids, model))
	findings = append(findings, a.sizeDistribution(ids, files))

	for _, file := range files {
		findings = append(findings, a.fileMetrics(ids, file))
		if lines := fileLines(file); lines > veryLargeFileLines {
			findings = append(findings, Finding{
				ID:            ids.next(),
				AgentID:       AgentStructural,
				Severity:      SeverityWarning,
				SubjectSymbol: fileSubject(file),
				Message:       "file too long",
				Evidence: map[string]string{
					"path":  file.Path,
					"lines": strconv.Itoa(lines),
				},
			})
		}
	}

	return findings, nil
}

func (a *StructuralAgent) structureSummary(ids *minter, model *codemodel.CodeModel) Finding {
	dirs := map[string]struct{}{}
	for _, f := range model.Files() {
		for d := path.Dir(f.Path); d != "." && d != "/"; d = path.Dir(d) {
			dirs[d] = struct{}{}
		}
	}
	return Finding{
		ID:       ids.next(),
		AgentID:  AgentStructural,
		Severity: SeverityInfo,
		Message:  "repository structure metrics",
		Evidence: map[string]string{
			"files":        strconv.Itoa(model.FileCount()),
			"directories":  strconv.Itoa(len(dirs)),
			"functions":    strconv.Itoa(model.SymbolCount(codemodel.SymbolFunction)),
			"classes":      strconv.Itoa(model.SymbolCount(codemodel.SymbolClass)),
			"modules":      strconv.Itoa(model.SymbolCount(codemodel.SymbolModule)),
			"import_edges": strconv.Itoa(model.ImportEdgeCount()),
		},
	}
}

func (a *StructuralAgent) languageBreakdown(ids *minter, files []codemodel.FileNode) (Finding, bool) {
	counts := map[string]int{}
	total := 0
	for _, f := range files {
		if f.Language == "" {
			continue
		}
		counts[f.Language]++
		total++
	}
	if total == 0 {
		return Finding{}, false
	}
	evidence := make(map[string]string, len(counts))
	for lang, n := range counts {
		evidence[lang] = formatPercent(float64(n) / float64(total) * 100)
	}
	return Finding{
		ID:       ids.next(),
		AgentID:  AgentStructural,
		Severity: SeverityInfo,
		Message:  "language breakdown",
		Evidence: evidence,
	}, true
}

func (a *StructuralAgent) complexityMetrics(ids *minter, files []codemodel.FileNode) Finding {
	var total, maxComplexity float64
	var maxFile string
	var totalLines, maxLines int
	for _, f := range files {
		c := estimateComplexity(f)
		total += c
		if c > maxComplexity {
			maxComplexity = c
			maxFile = f.Path
		}
		lines := fileLines(f)
		totalLines += lines
		if lines > maxLines {
			maxLines = lines
		}
	}
	avg, avgLines := 0.0, 0.0
	if len(files) > 0 {
		avg = total / float64(len(files))
		avgLines = float64(totalLines) / float64(len(files))
	}
	return Finding{
		ID:       ids.next(),
		AgentID:  AgentStructural,
		Severity: SeverityInfo,
		Message:  "complexity metrics",
		Evidence: map[string]string{
			"average_complexity":     formatScore(avg),
			"max_complexity":         formatScore(maxComplexity),
			"max_complexity_file":    maxFile,
			"average_lines_per_file": formatScore(avgLines),
			"max_lines":              strconv.Itoa(maxLines),
		},
	}
}

func (a *StructuralAgent) dependencyDensity(ids *minter, model *codemodel.CodeModel) Finding {
	density := 0.0
	if model.FileCount() > 0 {
		density = float64(model.ImportEdgeCount()) / float64(model.FileCount())
	}
	return Finding{
		ID:       ids.next(),
		AgentID:  AgentStructural,
		Severity: SeverityInfo,
		Message:  "dependency edge density",
		Evidence: map[string]string{
			"import_edges": strconv.Itoa(model.ImportEdgeCount()),
			"files":        strconv.Itoa(model.FileCount()),
			"density":      formatScore(density),
		},
	}
}

func (a *StructuralAgent) sizeDistribution(ids *minter, files []codemodel.FileNode) Finding {
	buckets := map[string]int{"small": 0, "medium": 0, "large": 0, "very_large": 0}
	for _, f := range files {
		switch lines := fileLines(f); {
		case lines < sizeSmallMax:
			buckets["small"]++
		case lines < sizeMediumMax:
			buckets["medium"]++
		case lines < sizeLargeMax:
			buckets["large"]++
		default:
			buckets["very_large"]++
		}
	}
	evidence := make(map[string]string, len(buckets))
	for name, n := range buckets {
		pct := 0.0
		if len(files) > 0 {
			pct = float64(n) / float64(len(files)) * 100
		}
		evidence[name] = formatPercent(pct)
	}
	return Finding{
		ID:       ids.next(),
		AgentID:  AgentStructural,
		Severity: SeverityInfo,
		Message:  "file size distribution",
		Evidence: evidence,
	}
}

// fileMetrics is the per-file finding downstream agents key on: the smell
// agent derives thresholds from it and links lineage to it.
func (a *StructuralAgent) fileMetrics(ids *minter, file codemodel.FileNode) Finding {
	funcs, classes := 0, 0
	longest, longestLines := "", 0
	for _, s := range file.Symbols {
		switch s.Kind {
		case codemodel.SymbolFunction:
			funcs++
			if l := s.Span.Lines(); l > longestLines {
				longest, longestLines = s.QualifiedName, l
			}
		case codemodel.SymbolClass:
			classes++
		}
	}
	return Finding{
		ID:            ids.next(),
		AgentID:       AgentStructural,
		Severity:      SeverityInfo,
		SubjectSymbol: fileSubject(file),
		Message:       "file metrics",
		Evidence: map[string]string{
			"path":                   file.Path,
			"lines":                  strconv.Itoa(fileLines(file)),
			"functions":              strconv.Itoa(funcs),
			"classes":                strconv.Itoa(classes),
			"longest_function":       longest,
			"longest_function_lines": strconv.Itoa(longestLines),
			"complexity":             formatScore(estimateComplexity(file)),
		},
	}
}

// estimateComplexity is a cheap cyclomatic-complexity-like score per file,
// derived from size and symbol shape. Capped at 10.
func estimateComplexity(file codemodel.FileNode) float64 {
	complexity := 1.0

	switch lines := fileLines(file); {
	case lines > 500:
		complexity += 3
	case lines > 300:
		complexity += 2
	case lines > 100:
		complexity += 1
	}

	funcs, maxFuncLines := 0, 0
	for _, s := range file.Symbols {
		if s.Kind != codemodel.SymbolFunction {
			continue
		}
		funcs++
		if l := s.Span.Lines(); l > maxFuncLines {
			maxFuncLines = l
		}
	}
	switch {
	case funcs > 20:
		complexity += 2
	case funcs > 10:
		complexity += 1
	}
	if maxFuncLines > 80 {
		complexity += 1
	}

	if complexity > 10 {
		complexity = 10
	}
	return complexity
}

// fileLines approximates a file's length from its symbol spans.
func fileLines(file codemodel.FileNode) int {
	max := 0
	for _, s := range file.Symbols {
		if s.Span.EndLine > max {
			max = s.Span.EndLine
		}
	}
	return max
}

// fileSubject picks the file's module symbol as subject when present,
// falling back to the path.
func fileSubject(file codemodel.FileNode) string {
	for _, s := range file.Symbols {
		if s.Kind == codemodel.SymbolModule {
			return s.QualifiedName
		}
	}
	return file.Path
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
