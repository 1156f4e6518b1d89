package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/repolens/repolens/store"
)

type createRepositoryRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

type repositoryResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Source    string `json:"source"`
	CreatedTs int64  `json:"created_ts"`
}

func toRepositoryResponse(repo *store.Repository) repositoryResponse {
	return repositoryResponse{
		ID:        repo.ID,
		Name:      repo.Name,
		Source:    repo.Source,
		CreatedTs: repo.CreatedTs,
	}
}

func (s *APIV1Service) createRepository(c echo.Context) error {
	req := &createRepositoryRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source is required")
	}
	if req.Name == "" {
		req.Name = repositoryNameFromSource(req.Source)
	}

	repo, err := s.Store.CreateRepository(c.Request().Context(), &store.Repository{
		Name:   req.Name,
		Source: req.Source,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create repository").SetInternal(err)
	}

	return c.JSON(http.StatusCreated, toRepositoryResponse(repo))
}

func (s *APIV1Service) listRepositories(c echo.Context) error {
	list, err := s.Store.ListRepositories(c.Request().Context(), &store.FindRepository{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list repositories").SetInternal(err)
	}

	resp := make([]repositoryResponse, 0, len(list))
	for _, repo := range list {
		resp = append(resp, toRepositoryResponse(repo))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) getRepository(c echo.Context) error {
	id := c.Param("id")
	repo, err := s.Store.GetRepository(c.Request().Context(), &store.FindRepository{ID: &id})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get repository").SetInternal(err)
	}
	if repo == nil {
		return echo.NewHTTPError(http.StatusNotFound, "repository not found")
	}
	return c.JSON(http.StatusOK, toRepositoryResponse(repo))
}

func (s *APIV1Service) deleteRepository(c echo.Context) error {
	id := c.Param("id")
	repo, err := s.Store.GetRepository(c.Request().Context(), &store.FindRepository{ID: &id})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get repository").SetInternal(err)
	}
	if repo == nil {
		return echo.NewHTTPError(http.StatusNotFound, "repository not found")
	}
	if err := s.Store.DeleteRepository(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete repository").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// repositoryNameFromSource derives a display name from a path or clone URL.
func repositoryNameFromSource(source string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(source, "/"), ".git")
	if idx := strings.LastIndexAny(trimmed, "/:"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return source
	}
	return trimmed
}
