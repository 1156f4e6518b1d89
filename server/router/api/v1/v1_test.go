package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/repolens/analysis"
	"github.com/repolens/repolens/internal/profile"
	"github.com/repolens/repolens/store"
	"github.com/repolens/repolens/store/db/sqlite"
)

func newTestAPI(t *testing.T) (*echo.Echo, *store.Store) {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "repolens_test.db"),
	}
	p.FromEnv()
	p.LLMAPIKey = ""
	p.LLMProvider = "openai"

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))
	st := store.New(driver, p)

	svc, err := analysis.NewService(p, st, nil)
	require.NoError(t, err)

	e := echo.New()
	NewAPIV1Service(p, st, svc).Register(e)
	return e, st
}

func writeSampleRepo(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "billing")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	src := "def format_total(amount):\n    return str(amount)\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoices.py"), []byte(src), 0o644))
	return dir
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRepositoryCRUD(t *testing.T) {
	e, _ := newTestAPI(t)
	source := writeSampleRepo(t)

	rec := doJSON(t, e, http.MethodPost, "/api/v1/repositories", `{"source":`+jsonQuote(source)+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created repositoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "billing", created.Name)

	rec = doJSON(t, e, http.MethodGet, "/api/v1/repositories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []repositoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = doJSON(t, e, http.MethodGet, "/api/v1/repositories/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, e, http.MethodDelete, "/api/v1/repositories/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/v1/repositories/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRepositoryRequiresSource(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(t, e, http.MethodPost, "/api/v1/repositories", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisRunOverAPI(t *testing.T) {
	e, _ := newTestAPI(t)
	source := writeSampleRepo(t)

	rec := doJSON(t, e, http.MethodPost, "/api/v1/repositories", `{"source":`+jsonQuote(source)+`}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var repo repositoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repo))

	rec = doJSON(t, e, http.MethodPost, "/api/v1/analyses", `{"repository_id":"`+repo.ID+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var run analysisRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.NotEmpty(t, run.RunID)

	require.Eventually(t, func() bool {
		rec := doJSON(t, e, http.MethodGet, "/api/v1/analyses/"+run.RunID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		var got analysisRunResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			return false
		}
		return got.Phase == "completed"
	}, 15*time.Second, 20*time.Millisecond)

	// Persisted report should be retrievable once the run is done. Persistence
	// happens right after completion, so allow it a moment to land.
	var reports []reportSummaryResponse
	require.Eventually(t, func() bool {
		rec := doJSON(t, e, http.MethodGet, "/api/v1/repositories/"+repo.ID+"/reports", "")
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &reports); err != nil {
			return false
		}
		return len(reports) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "complete", reports[0].Status)

	rec = doJSON(t, e, http.MethodGet, "/api/v1/reports/"+reports[0].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"repository_id":"`+repo.ID+`"`)

	rec = doJSON(t, e, http.MethodGet, "/api/v1/reports/"+reports[0].ID+"/markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1")
}

func TestStartAnalysisUnknownRepository(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(t, e, http.MethodPost, "/api/v1/analyses", `{"repository_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAnalysisUnknownRun(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(t, e, http.MethodGet, "/api/v1/analyses/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReportUnknown(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(t, e, http.MethodGet, "/api/v1/reports/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRepositoryNameFromSource(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"/srv/code/payments", "payments"},
		{"https://example.com/org/payments.git", "payments"},
		{"git@example.com:org/payments.git", "payments"},
		{"payments", "payments"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, repositoryNameFromSource(tt.source), tt.source)
	}
}

// jsonQuote JSON-quotes a string, keeping windows-unfriendly path escaping out
// of the test bodies.
func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
