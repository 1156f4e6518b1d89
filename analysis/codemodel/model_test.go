package codemodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCopiesInput(t *testing.T) {
	files := []FileNode{
		{
			Path:     "pkg/a.go",
			Language: "Go",
			Symbols:  []Symbol{{QualifiedName: "a.Do", Kind: SymbolFunction, Span: Span{1, 10}}},
			Imports:  []ModuleRef{{Path: "pkg/b"}},
		},
	}

	model := Build("repo-1", files)

	// Mutating the caller's slices must not affect the snapshot.
	files[0].Symbols[0].QualifiedName = "mutated"
	files[0].Imports[0].Path = "mutated"
	files[0].Path = "mutated"

	got := model.Files()
	assert.Equal(t, "pkg/a.go", got[0].Path)
	assert.Equal(t, "a.Do", got[0].Symbols[0].QualifiedName)
	assert.Equal(t, "pkg/b", got[0].Imports[0].Path)
}

func TestCounts(t *testing.T) {
	model := Build("repo-1", []FileNode{
		{
			Path: "a.py",
			Symbols: []Symbol{
				{QualifiedName: "a", Kind: SymbolModule},
				{QualifiedName: "a.f", Kind: SymbolFunction, Span: Span{2, 5}},
				{QualifiedName: "a.C", Kind: SymbolClass, Span: Span{7, 30}},
			},
			Imports: []ModuleRef{{Path: "b"}, {Path: "c"}},
		},
		{
			Path:    "b.py",
			Symbols: []Symbol{{QualifiedName: "b.g", Kind: SymbolFunction, Span: Span{1, 3}}},
		},
	})

	assert.Equal(t, 2, model.FileCount())
	assert.Equal(t, 2, model.SymbolCount(SymbolFunction))
	assert.Equal(t, 1, model.SymbolCount(SymbolClass))
	assert.Equal(t, 1, model.SymbolCount(SymbolModule))
	assert.Equal(t, 2, model.ImportEdgeCount())
}

func TestSpanLines(t *testing.T) {
	assert.Equal(t, 10, Span{StartLine: 1, EndLine: 10}.Lines())
	assert.Equal(t, 1, Span{StartLine: 5, EndLine: 5}.Lines())
	assert.Equal(t, 0, Span{StartLine: 5, EndLine: 2}.Lines())
}
