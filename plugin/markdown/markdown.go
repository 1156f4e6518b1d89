// Package markdown renders report markdown to HTML.
package markdown

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Service converts markdown documents to HTML.
type Service interface {
	Render(source string) (string, error)
}

type service struct {
	md goldmark.Markdown
}

// NewService creates a markdown rendering service. Tables are enabled because
// report sections use them for evidence listings.
func NewService() Service {
	return &service{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

func (s *service) Render(source string) (string, error) {
	var b strings.Builder
	if err := s.md.Convert([]byte(source), &b); err != nil {
		return "", errors.Wrap(err, "markdown: failed to render")
	}
	return b.String(), nil
}
