package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/repolens/repolens/store"
)

type reportSummaryResponse struct {
	ID           string `json:"id"`
	RepositoryID string `json:"repository_id"`
	Status       string `json:"status"`
	CreatedTs    int64  `json:"created_ts"`
}

func (s *APIV1Service) listReports(c echo.Context) error {
	repositoryID := c.Param("id")
	repo, err := s.Store.GetRepository(c.Request().Context(), &store.FindRepository{ID: &repositoryID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get repository").SetInternal(err)
	}
	if repo == nil {
		return echo.NewHTTPError(http.StatusNotFound, "repository not found")
	}

	list, err := s.Store.ListReportRecords(c.Request().Context(), &store.FindReportRecord{RepositoryID: &repositoryID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list reports").SetInternal(err)
	}

	resp := make([]reportSummaryResponse, 0, len(list))
	for _, record := range list {
		resp = append(resp, reportSummaryResponse{
			ID:           record.ID,
			RepositoryID: record.RepositoryID,
			Status:       record.Status,
			CreatedTs:    record.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) getReport(c echo.Context) error {
	record, err := s.findReport(c)
	if err != nil {
		return err
	}
	// Payload is the canonical JSON encoding produced at assembly time;
	// return it verbatim so stored reports stay byte-identical over the API.
	return c.JSONBlob(http.StatusOK, []byte(record.Payload))
}

func (s *APIV1Service) getReportMarkdown(c echo.Context) error {
	record, err := s.findReport(c)
	if err != nil {
		return err
	}

	html, renderErr := s.markdownService.Render(record.Markdown)
	if renderErr != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render report").SetInternal(renderErr)
	}
	return c.HTML(http.StatusOK, html)
}

func (s *APIV1Service) findReport(c echo.Context) (*store.ReportRecord, error) {
	id := c.Param("id")
	record, err := s.Store.GetReportRecord(c.Request().Context(), &store.FindReportRecord{ID: &id})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get report").SetInternal(err)
	}
	if record == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return record, nil
}
