package ingest

import (
	"path"
	"regexp"
	"strings"

	"github.com/repolens/repolens/analysis/codemodel"
)

// symbolRule detects one symbol kind in one language. The expression must
// capture two groups: leading indentation and the symbol name.
type symbolRule struct {
	kind codemodel.SymbolKind
	re   *regexp.Regexp
}

var defRules = []symbolRule{
	{codemodel.SymbolFunction, regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)`)},
	{codemodel.SymbolClass, regexp.MustCompile(`^(\s*)class\s+(\w+)`)},
}

var jsRules = []symbolRule{
	{codemodel.SymbolFunction, regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s+(\w+)`)},
	{codemodel.SymbolFunction, regexp.MustCompile(`^(\s*)(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(`)},
	{codemodel.SymbolClass, regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?class\s+(\w+)`)},
}

// symbolRules holds the heuristics per language tag. Languages without an
// entry still get their module symbol and import edges.
var symbolRules = map[string][]symbolRule{
	"python":     defRules,
	"ruby":       defRules,
	"javascript": jsRules,
	"typescript": jsRules,
	"go": {
		{codemodel.SymbolFunction, regexp.MustCompile(`^()func\s+(?:\([^)]*\)\s+)?(\w+)`)},
		{codemodel.SymbolClass, regexp.MustCompile(`^()type\s+(\w+)\s+struct\b`)},
	},
	"java": {
		{codemodel.SymbolClass, regexp.MustCompile(`^(\s*)(?:public\s+|final\s+|abstract\s+)*class\s+(\w+)`)},
	},
	"csharp": {
		{codemodel.SymbolClass, regexp.MustCompile(`^(\s*)(?:public\s+|internal\s+|sealed\s+|abstract\s+|partial\s+)*class\s+(\w+)`)},
	},
	"rust": {
		{codemodel.SymbolFunction, regexp.MustCompile(`^(\s*)(?:pub\s+)?(?:async\s+)?fn\s+(\w+)`)},
		{codemodel.SymbolClass, regexp.MustCompile(`^(\s*)(?:pub\s+)?struct\s+(\w+)`)},
	},
	"kotlin": {
		{codemodel.SymbolFunction, regexp.MustCompile(`^(\s*)(?:\w+\s+)*fun\s+(\w+)`)},
		{codemodel.SymbolClass, regexp.MustCompile(`^(\s*)(?:\w+\s+)*class\s+(\w+)`)},
	},
	"php": {
		{codemodel.SymbolFunction, regexp.MustCompile(`^(\s*)(?:\w+\s+)*function\s+(\w+)`)},
		{codemodel.SymbolClass, regexp.MustCompile(`^(\s*)(?:\w+\s+)*class\s+(\w+)`)},
	},
}

var importPatterns = map[string][]*regexp.Regexp{
	"python": {
		regexp.MustCompile(`^\s*import\s+([\w.]+)`),
		regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import`),
	},
	"go": {
		regexp.MustCompile(`^\s*import\s+(?:[\w.]+\s+)?"([^"]+)"`),
	},
	"javascript": {
		regexp.MustCompile(`from\s+['"]([^'"]+)['"]`),
		regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
	},
	"java": {
		regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.]+);`),
	},
	"rust": {
		regexp.MustCompile(`^\s*use\s+([\w:]+)`),
	},
}

func init() {
	importPatterns["typescript"] = importPatterns["javascript"]
	importPatterns["ruby"] = []*regexp.Regexp{regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`)}
	importPatterns["kotlin"] = importPatterns["java"]
}

type rawSymbol struct {
	kind   codemodel.SymbolKind
	name   string
	indent int
	start  int // 1-based line
	end    int
}

// extractFile builds the FileNode for one source file. Heuristics only: a
// symbol spans from its declaration to the line before the next declaration
// at the same or shallower indentation.
func extractFile(relPath, language, content string) codemodel.FileNode {
	lines := strings.Split(content, "\n")
	module := moduleName(relPath)

	raws := findSymbols(language, lines)
	resolveSpans(raws, len(lines))

	symbols := make([]codemodel.Symbol, 0, len(raws)+1)
	symbols = append(symbols, codemodel.Symbol{
		QualifiedName: module,
		Kind:          codemodel.SymbolModule,
		Span:          codemodel.Span{StartLine: 1, EndLine: len(lines)},
	})
	for i, raw := range raws {
		symbols = append(symbols, codemodel.Symbol{
			QualifiedName: qualify(module, raws, i),
			Kind:          raw.kind,
			Span:          codemodel.Span{StartLine: raw.start, EndLine: raw.end},
		})
	}

	return codemodel.FileNode{
		Path:     relPath,
		Language: language,
		Symbols:  symbols,
		Imports:  findImports(language, lines),
	}
}

func findSymbols(language string, lines []string) []rawSymbol {
	rules, ok := symbolRules[language]
	if !ok {
		return nil
	}
	var raws []rawSymbol
	for i, line := range lines {
		for _, rule := range rules {
			m := rule.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			raws = append(raws, rawSymbol{
				kind:   rule.kind,
				name:   m[2],
				indent: len(m[1]),
				start:  i + 1,
			})
			break
		}
	}
	return raws
}

// resolveSpans closes each symbol at the line before the next declaration at
// the same or shallower indentation, or at end of file.
func resolveSpans(raws []rawSymbol, lineCount int) {
	for i := range raws {
		raws[i].end = lineCount
		for j := i + 1; j < len(raws); j++ {
			if raws[j].indent <= raws[i].indent {
				raws[i].end = raws[j].start - 1
				break
			}
		}
	}
}

// qualify prefixes the symbol with its module and, for nested symbols, the
// innermost enclosing class.
func qualify(module string, raws []rawSymbol, idx int) string {
	s := raws[idx]
	for j := idx - 1; j >= 0; j-- {
		enclosing := raws[j]
		if enclosing.kind == codemodel.SymbolClass &&
			enclosing.indent < s.indent &&
			enclosing.start < s.start && enclosing.end >= s.start {
			return module + "." + enclosing.name + "." + s.name
		}
	}
	return module + "." + s.name
}

func findImports(language string, lines []string) []codemodel.ModuleRef {
	patterns, ok := importPatterns[language]
	if !ok {
		return nil
	}

	var refs []codemodel.ModuleRef
	seen := map[string]bool{}
	add := func(target string) {
		if target == "" || seen[target] {
			return
		}
		seen[target] = true
		refs = append(refs, codemodel.ModuleRef{Path: target})
	}

	inGoBlock := false
	for _, line := range lines {
		if language == "go" {
			switch {
			case strings.HasPrefix(strings.TrimSpace(line), "import ("):
				inGoBlock = true
				continue
			case inGoBlock && strings.TrimSpace(line) == ")":
				inGoBlock = false
				continue
			case inGoBlock:
				if m := goBlockImport.FindStringSubmatch(line); m != nil {
					add(m[1])
				}
				continue
			}
		}
		for _, re := range patterns {
			if m := re.FindStringSubmatch(line); m != nil {
				add(m[1])
				break
			}
		}
	}
	return refs
}

var goBlockImport = regexp.MustCompile(`^\s*(?:[\w.]+\s+)?"([^"]+)"`)

// moduleName turns a relative path into a dotted module identifier.
func moduleName(relPath string) string {
	trimmed := strings.TrimSuffix(relPath, path.Ext(relPath))
	return strings.ReplaceAll(trimmed, "/", ".")
}
