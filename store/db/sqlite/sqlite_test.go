package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/repolens/internal/profile"
	"github.com/repolens/repolens/internal/version"
	"github.com/repolens/repolens/store"
)

func newTestDriver(t *testing.T) store.Driver {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "repolens_test.db"),
	}
	driver, err := NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	require.NoError(t, driver.Migrate(context.Background()))
	return driver
}

func TestMigrateRecordsSchemaVersion(t *testing.T) {
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "repolens_test.db"),
	}
	driver, err := NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	st := store.New(driver, p)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	stored, err := driver.GetSchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.GetMinorVersion(version.Version), stored)

	// Re-running against the same database is a no-op.
	require.NoError(t, st.Migrate(ctx))
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "repolens_test.db"),
	}
	driver, err := NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	ctx := context.Background()
	require.NoError(t, driver.Migrate(ctx))
	require.NoError(t, driver.UpsertSchemaVersion(ctx, "99.0"))

	err = store.New(driver, p).Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than binary")
}

func TestRepositoryRoundTrip(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	created, err := driver.CreateRepository(ctx, &store.Repository{
		ID:        "repo-1",
		Name:      "payments",
		Source:    "/srv/code/payments",
		CreatedTs: 1700000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "repo-1", created.ID)

	id := "repo-1"
	list, err := driver.ListRepositories(ctx, &store.FindRepository{ID: &id})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "payments", list[0].Name)
	assert.Equal(t, "/srv/code/payments", list[0].Source)
	assert.Equal(t, int64(1700000000), list[0].CreatedTs)
}

func TestListRepositoriesOrderAndLimit(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	for i, name := range []string{"older", "newer"} {
		_, err := driver.CreateRepository(ctx, &store.Repository{
			ID:        name,
			Name:      name,
			Source:    "/tmp/" + name,
			CreatedTs: int64(1700000000 + i),
		})
		require.NoError(t, err)
	}

	limit := 1
	list, err := driver.ListRepositories(ctx, &store.FindRepository{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "newer", list[0].Name)
}

func TestReportRecordRoundTrip(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	_, err := driver.CreateRepository(ctx, &store.Repository{
		ID:        "repo-1",
		Name:      "payments",
		Source:    "/srv/code/payments",
		CreatedTs: 1700000000,
	})
	require.NoError(t, err)

	_, err = driver.CreateReportRecord(ctx, &store.ReportRecord{
		ID:           "rep-1",
		RepositoryID: "repo-1",
		Status:       "complete",
		Payload:      `{"repository_id":"repo-1"}`,
		Markdown:     "# Analysis Report: payments",
		CreatedTs:    1700000100,
	})
	require.NoError(t, err)

	repoID := "repo-1"
	list, err := driver.ListReportRecords(ctx, &store.FindReportRecord{RepositoryID: &repoID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "complete", list[0].Status)
	assert.Contains(t, list[0].Markdown, "Analysis Report")
}

func TestDeleteRepositoryRemovesReports(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	_, err := driver.CreateRepository(ctx, &store.Repository{
		ID: "repo-1", Name: "payments", Source: "/tmp/payments", CreatedTs: 1,
	})
	require.NoError(t, err)
	_, err = driver.CreateReportRecord(ctx, &store.ReportRecord{
		ID: "rep-1", RepositoryID: "repo-1", Status: "complete", Payload: "{}", Markdown: "", CreatedTs: 2,
	})
	require.NoError(t, err)

	require.NoError(t, driver.DeleteRepository(ctx, "repo-1"))

	repoID := "repo-1"
	repos, err := driver.ListRepositories(ctx, &store.FindRepository{ID: &repoID})
	require.NoError(t, err)
	assert.Empty(t, repos)

	reports, err := driver.ListReportRecords(ctx, &store.FindReportRecord{RepositoryID: &repoID})
	require.NoError(t, err)
	assert.Empty(t, reports)
}
