package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/repolens/analysis/codemodel"
)

func testModel(t *testing.T, files []codemodel.FileNode) *codemodel.CodeModel {
	t.Helper()
	return codemodel.Build("repo-test", files)
}

func TestStructuralMetrics(t *testing.T) {
	model := testModel(t, []codemodel.FileNode{
		{
			Path:     "pkg/api/server.py",
			Language: "python",
			Symbols: []codemodel.Symbol{
				{QualifiedName: "server", Kind: codemodel.SymbolModule, Span: codemodel.Span{StartLine: 1, EndLine: 120}},
				{QualifiedName: "server.start", Kind: codemodel.SymbolFunction, Span: codemodel.Span{StartLine: 10, EndLine: 40}},
				{QualifiedName: "server.stop", Kind: codemodel.SymbolFunction, Span: codemodel.Span{StartLine: 42, EndLine: 60}},
				{QualifiedName: "server.Router", Kind: codemodel.SymbolClass, Span: codemodel.Span{StartLine: 62, EndLine: 120}},
			},
			Imports: []codemodel.ModuleRef{{Path: "os"}, {Path: "pkg/util"}},
		},
		{
			Path:     "pkg/util/helpers.py",
			Language: "python",
			Symbols: []codemodel.Symbol{
				{QualifiedName: "helpers.format", Kind: codemodel.SymbolFunction, Span: codemodel.Span{StartLine: 1, EndLine: 20}},
			},
		},
	})

	findings, err := NewStructural().Run(context.Background(), model, nil)
	require.NoError(t, err)
	require.NotEmpty(t, findings)

	summary := findings[0]
	assert.Equal(t, "repository structure metrics", summary.Message)
	assert.Equal(t, "structural-001", summary.ID)
	assert.Equal(t, "2", summary.Evidence["files"])
	assert.Equal(t, "3", summary.Evidence["functions"])
	assert.Equal(t, "1", summary.Evidence["classes"])
	assert.Equal(t, "2", summary.Evidence["import_edges"])

	var metrics []Finding
	for _, f := range findings {
		if f.Message == "file metrics" {
			metrics = append(metrics, f)
		}
	}
	require.Len(t, metrics, 2)
	assert.Equal(t, "pkg/api/server.py", metrics[0].Evidence["path"])
	assert.Equal(t, "server.start", metrics[0].Evidence["longest_function"])
	assert.Equal(t, "31", metrics[0].Evidence["longest_function_lines"])
}

func TestStructuralDeterministicAcrossRuns(t *testing.T) {
	model := testModel(t, []codemodel.FileNode{
		{
			Path:     "a.go",
			Language: "go",
			Symbols: []codemodel.Symbol{
				{QualifiedName: "a.Run", Kind: codemodel.SymbolFunction, Span: codemodel.Span{StartLine: 1, EndLine: 50}},
			},
		},
		{
			Path:     "b.go",
			Language: "go",
			Symbols: []codemodel.Symbol{
				{QualifiedName: "b.Run", Kind: codemodel.SymbolFunction, Span: codemodel.Span{StartLine: 1, EndLine: 700}},
			},
		},
	})

	agent := NewStructural()
	first, err := agent.Run(context.Background(), model, nil)
	require.NoError(t, err)
	second, err := agent.Run(context.Background(), model, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStructuralFlagsVeryLargeFile(t *testing.T) {
	model := testModel(t, []codemodel.FileNode{
		{
			Path:     "monolith.py",
			Language: "python",
			Symbols: []codemodel.Symbol{
				{QualifiedName: "monolith.main", Kind: codemodel.SymbolFunction, Span: codemodel.Span{StartLine: 1, EndLine: 650}},
			},
		},
	})

	findings, err := NewStructural().Run(context.Background(), model, nil)
	require.NoError(t, err)

	var warning *Finding
	for i := range findings {
		if findings[i].Severity == SeverityWarning {
			warning = &findings[i]
			break
		}
	}
	require.NotNil(t, warning, "expected a warning for the 650-line file")
	assert.Equal(t, "file too long", warning.Message)
	assert.Equal(t, "650", warning.Evidence["lines"])
}

func TestStructuralNilModel(t *testing.T) {
	_, err := NewStructural().Run(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestEstimateComplexityCapped(t *testing.T) {
	symbols := make([]codemodel.Symbol, 0, 30)
	for i := 0; i < 30; i++ {
		symbols = append(symbols, codemodel.Symbol{
			QualifiedName: "f",
			Kind:          codemodel.SymbolFunction,
			Span:          codemodel.Span{StartLine: i * 100, EndLine: i*100 + 90},
		})
	}
	file := codemodel.FileNode{Path: "huge.py", Symbols: symbols}
	assert.LessOrEqual(t, estimateComplexity(file), 10.0)
	assert.Greater(t, estimateComplexity(file), 5.0)
}
