package ingest

import (
	"context"
	"log/slog"
	"os"

	git "github.com/go-git/go-git/v5"

	"github.com/repolens/repolens/analysis/codemodel"
)

// GitIngestor shallow-clones a remote repository into a scratch directory,
// builds the model, and discards the checkout.
type GitIngestor struct {
	opts Options
}

// NewGit creates an ingestor for remote git URLs.
func NewGit(opts Options) *GitIngestor {
	return &GitIngestor{opts: opts.withDefaults()}
}

func (in *GitIngestor) Ingest(ctx context.Context, source string) (*codemodel.CodeModel, error) {
	dir, err := os.MkdirTemp("", "repolens-clone-")
	if err != nil {
		return nil, &IngestionError{Source: source, Err: err}
	}
	defer os.RemoveAll(dir)

	slog.Info("ingest: cloning repository", "source", source)
	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          source,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		return nil, &IngestionError{Source: source, Err: err}
	}

	return buildModel(ctx, dir, repositoryID(source), in.opts)
}
