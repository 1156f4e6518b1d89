// Package ingest turns a repository, remote or local, into a code model.
// Ingestion is the precondition of every analysis run: clone or read the
// tree, pick the analyzable sources, and extract symbols and imports with
// lightweight per-language heuristics.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/repolens/repolens/analysis/codemodel"
)

// IngestionError reports that a repository could not be turned into a code
// model: unreachable remote, unreadable tree, or nothing analyzable inside.
type IngestionError struct {
	Source string
	Err    error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Source, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// Options bound the amount of work one ingestion may do.
type Options struct {
	// MaxFiles caps how many source files enter the model; files beyond the
	// cap are dropped in walk order.
	MaxFiles int
	// MaxFileBytes skips any single file larger than this.
	MaxFileBytes int64
}

// DefaultOptions returns production limits.
func DefaultOptions() Options {
	return Options{
		MaxFiles:     500,
		MaxFileBytes: 1 << 20,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxFiles <= 0 {
		o.MaxFiles = def.MaxFiles
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = def.MaxFileBytes
	}
	return o
}

// Ingestor builds a code model from a repository source.
type Ingestor interface {
	Ingest(ctx context.Context, source string) (*codemodel.CodeModel, error)
}

// ForSource picks the ingestor matching the source notation: git URLs get
// cloned, anything else is read as a local path.
func ForSource(source string, opts Options) Ingestor {
	if isRemote(source) {
		return NewGit(opts)
	}
	return NewLocal(opts)
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "git://") ||
		strings.HasPrefix(source, "ssh://") ||
		strings.HasPrefix(source, "git@")
}

// repositoryID derives a stable identifier from the source: the last path
// element without the .git suffix.
func repositoryID(source string) string {
	id := strings.TrimSuffix(strings.TrimRight(source, "/"), ".git")
	if i := strings.LastIndexAny(id, "/:"); i >= 0 {
		id = id[i+1:]
	}
	if id == "" || id == "." {
		return "repository"
	}
	return id
}
