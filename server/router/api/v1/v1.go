// Package v1 implements the JSON API for repositories, analysis runs and
// reports.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/repolens/repolens/analysis"
	"github.com/repolens/repolens/internal/profile"
	"github.com/repolens/repolens/plugin/markdown"
	"github.com/repolens/repolens/store"
)

type APIV1Service struct {
	Profile  *profile.Profile
	Store    *store.Store
	Analysis *analysis.Service

	markdownService markdown.Service
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, analysis *analysis.Service) *APIV1Service {
	return &APIV1Service{
		Profile:         profile,
		Store:           store,
		Analysis:        analysis,
		markdownService: markdown.NewService(),
	}
}

// Register attaches all v1 routes to the echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/repositories", s.createRepository)
	g.GET("/repositories", s.listRepositories)
	g.GET("/repositories/:id", s.getRepository)
	g.DELETE("/repositories/:id", s.deleteRepository)

	g.POST("/analyses", s.startAnalysis)
	g.GET("/analyses/:id", s.getAnalysis)

	g.GET("/repositories/:id/reports", s.listReports)
	g.GET("/reports/:id", s.getReport)
	g.GET("/reports/:id/markdown", s.getReportMarkdown)
}
