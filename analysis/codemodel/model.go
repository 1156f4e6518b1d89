// Package codemodel defines the normalized, read-only representation of an
// ingested repository: files, symbols, and import edges. A CodeModel is built
// once per analysis run and never mutated afterwards; every agent reads the
// same snapshot.
package codemodel

// SymbolKind classifies a symbol extracted from a source file.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolModule   SymbolKind = "module"
)

// Span is a half-open line range [StartLine, EndLine] within a file.
type Span struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Lines returns the number of source lines the span covers.
func (s Span) Lines() int {
	if s.EndLine < s.StartLine {
		return 0
	}
	return s.EndLine - s.StartLine + 1
}

// Symbol is a named declaration inside a file.
type Symbol struct {
	QualifiedName string     `json:"qualified_name"`
	Kind          SymbolKind `json:"kind"`
	Span          Span       `json:"span"`
}

// ModuleRef is an import edge from a file to a module or another file.
type ModuleRef struct {
	Path string `json:"path"`
}

// FileNode is one source file of the repository.
type FileNode struct {
	Path     string      `json:"path"`
	Language string      `json:"language"`
	Symbols  []Symbol    `json:"symbols"`
	Imports  []ModuleRef `json:"imports"`
}

// CodeModel is the immutable snapshot consumed by the analysis agents.
// Construct it with Build; the input is deep-copied so later mutations by the
// caller cannot leak into a running analysis.
type CodeModel struct {
	repositoryID string
	files        []FileNode
}

// Build creates a CodeModel from the ingested files. File order is preserved
// and becomes the canonical iteration order for all agents, which is what
// makes agent output deterministic for a fixed input.
func Build(repositoryID string, files []FileNode) *CodeModel {
	copied := make([]FileNode, len(files))
	for i, f := range files {
		copied[i] = FileNode{
			Path:     f.Path,
			Language: f.Language,
			Symbols:  append([]Symbol(nil), f.Symbols...),
			Imports:  append([]ModuleRef(nil), f.Imports...),
		}
	}
	return &CodeModel{repositoryID: repositoryID, files: copied}
}

// RepositoryID returns the identifier of the ingested repository.
func (m *CodeModel) RepositoryID() string {
	return m.repositoryID
}

// Files returns the file nodes in canonical order. Callers must treat the
// returned slice as read-only.
func (m *CodeModel) Files() []FileNode {
	return m.files
}

// FileCount returns the number of files in the snapshot.
func (m *CodeModel) FileCount() int {
	return len(m.files)
}

// SymbolCount returns the number of symbols of the given kind across all files.
func (m *CodeModel) SymbolCount(kind SymbolKind) int {
	n := 0
	for _, f := range m.files {
		for _, s := range f.Symbols {
			if s.Kind == kind {
				n++
			}
		}
	}
	return n
}

// ImportEdgeCount returns the total number of import edges in the snapshot.
func (m *CodeModel) ImportEdgeCount() int {
	n := 0
	for _, f := range m.files {
		n += len(f.Imports)
	}
	return n
}
