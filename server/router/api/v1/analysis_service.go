package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/repolens/repolens/store"
)

type startAnalysisRequest struct {
	RepositoryID string `json:"repository_id"`
}

type analysisRunResponse struct {
	RunID        string `json:"run_id"`
	RepositoryID string `json:"repository_id"`
	Phase        string `json:"phase"`
	Error        string `json:"error,omitempty"`
}

func (s *APIV1Service) startAnalysis(c echo.Context) error {
	req := &startAnalysisRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.RepositoryID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repository_id is required")
	}

	repo, err := s.Store.GetRepository(c.Request().Context(), &store.FindRepository{ID: &req.RepositoryID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get repository").SetInternal(err)
	}
	if repo == nil {
		return echo.NewHTTPError(http.StatusNotFound, "repository not found")
	}

	run := s.Analysis.StartAnalysis(c.Request().Context(), repo.ID, repo.Source)

	return c.JSON(http.StatusAccepted, analysisRunResponse{
		RunID:        run.ID,
		RepositoryID: run.RepositoryID,
		Phase:        string(run.Phase()),
	})
}

func (s *APIV1Service) getAnalysis(c echo.Context) error {
	run, ok := s.Analysis.GetRun(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "analysis run not found")
	}

	return c.JSON(http.StatusOK, analysisRunResponse{
		RunID:        run.ID,
		RepositoryID: run.RepositoryID,
		Phase:        string(run.Phase()),
		Error:        run.Err(),
	})
}
