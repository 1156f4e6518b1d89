package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/repolens/repolens/analysis/codemodel"
)

// skipDirs are tree entries never worth analyzing.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
}

// languageByExt maps source file extensions to the language tag carried in
// the code model.
var languageByExt = map[string]string{
	".py":    "python",
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".rs":    "rust",
	".scala": "scala",
}

// LocalIngestor builds a code model from a checked-out tree on disk.
type LocalIngestor struct {
	opts Options
}

// NewLocal creates an ingestor for local directories.
func NewLocal(opts Options) *LocalIngestor {
	return &LocalIngestor{opts: opts.withDefaults()}
}

func (in *LocalIngestor) Ingest(ctx context.Context, source string) (*codemodel.CodeModel, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, &IngestionError{Source: source, Err: err}
	}
	if !info.IsDir() {
		return nil, &IngestionError{Source: source, Err: errors.New("not a directory")}
	}
	return buildModel(ctx, source, repositoryID(source), in.opts)
}

// buildModel walks root and extracts a FileNode per analyzable file. WalkDir
// visits entries in lexical order, which fixes the model's canonical file
// order without an extra sort.
func buildModel(ctx context.Context, root, repoID string, opts Options) (*codemodel.CodeModel, error) {
	var files []codemodel.FileNode

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= opts.MaxFiles {
			return filepath.SkipAll
		}

		language, ok := languageByExt[filepath.Ext(path)]
		if !ok {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > opts.MaxFileBytes {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("ingest: unreadable file skipped", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		files = append(files, extractFile(rel, language, string(content)))
		return nil
	})
	if err != nil {
		return nil, &IngestionError{Source: root, Err: err}
	}
	if len(files) == 0 {
		return nil, &IngestionError{Source: root, Err: errors.New("no analyzable source files")}
	}

	slog.Info("ingest: model built", "repository_id", repoID, "files", len(files))
	return codemodel.Build(repoID, files), nil
}
