package report

import (
	"fmt"
	"math"
	"strconv"

	"github.com/repolens/repolens/analysis/agents"
)

// Quality score model: start from a neutral baseline, deduct for smells,
// reward recognized design patterns, and adjust for average complexity.
const (
	scoreBase         = 70.0
	warningDeduction  = 1.5
	criticalDeduction = 3.0
	maxDeduction      = 30.0
	patternBonus      = 2.5
	maxPatternBonus   = 15.0
	complexityPivot   = 5.0
	complexityWeight  = 2.0
)

// summarize computes the quality score and headline observations from the
// assembled sections.
func summarize(sections []agents.RunResult) Summary {
	var warnings, criticals, patterns int
	avgComplexity := 0.0
	structuralOK := false

	for _, section := range sections {
		if !section.Succeeded() {
			continue
		}
		switch section.AgentID {
		case agents.AgentStructural:
			structuralOK = true
			avgComplexity = averageComplexity(section.Findings)
		case agents.AgentPattern:
			patterns = len(section.Findings)
		}
		for _, f := range section.Findings {
			if f.AgentID == agents.AgentRefactoring {
				// Remediations mirror smell severities; counting them too
				// would double-charge every smell.
				continue
			}
			switch f.Severity {
			case agents.SeverityWarning:
				warnings++
			case agents.SeverityCritical:
				criticals++
			}
		}
	}

	score := scoreBase
	score -= math.Min(maxDeduction, warningDeduction*float64(warnings)+criticalDeduction*float64(criticals))
	score += math.Min(maxPatternBonus, patternBonus*float64(patterns))
	if structuralOK && avgComplexity > complexityPivot {
		score -= complexityWeight * (avgComplexity - complexityPivot)
	}
	score = math.Max(0, math.Min(100, score))

	return Summary{
		QualityScore: math.Round(score*10) / 10,
		Strengths:    strengths(sections, warnings, criticals, patterns, avgComplexity),
		Concerns:     concerns(sections, warnings, criticals),
	}
}

// averageComplexity pulls the average complexity out of the structural
// section's complexity metrics finding.
func averageComplexity(findings []agents.Finding) float64 {
	for _, f := range findings {
		if f.Message != "complexity metrics" {
			continue
		}
		if v, err := strconv.ParseFloat(f.Evidence["average_complexity"], 64); err == nil {
			return v
		}
	}
	return 0
}

func strengths(sections []agents.RunResult, warnings, criticals, patterns int, avgComplexity float64) []string {
	var out []string
	if criticals == 0 {
		out = append(out, "no critical findings")
	}
	if warnings == 0 && criticals == 0 {
		out = append(out, "no code smells above the reporting thresholds")
	}
	if patterns > 0 {
		out = append(out, fmt.Sprintf("%d recognized design pattern(s)", patterns))
	}
	if structural, ok := sectionByID(sections, agents.AgentStructural); ok && structural.Succeeded() {
		if avgComplexity > 0 && avgComplexity <= complexityPivot {
			out = append(out, "low average file complexity")
		}
	}
	return out
}

func concerns(sections []agents.RunResult, warnings, criticals int) []string {
	var out []string
	if criticals > 0 {
		out = append(out, fmt.Sprintf("%d critical finding(s) need attention", criticals))
	}
	if warnings > 0 {
		out = append(out, fmt.Sprintf("%d warning-level finding(s)", warnings))
	}
	for _, section := range sections {
		if !section.Succeeded() {
			out = append(out, fmt.Sprintf("%s analysis %s", section.AgentID, section.Status))
		}
	}
	return out
}

func sectionByID(sections []agents.RunResult, agentID string) (agents.RunResult, bool) {
	for _, s := range sections {
		if s.AgentID == agentID {
			return s, true
		}
	}
	return agents.RunResult{}, false
}
