package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/repolens/repolens/internal/profile"
	"github.com/repolens/repolens/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database specified by its database driver name and a
// driver-specific data source name, usually consisting of at least a
// database name and connection information.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	// Ensure a DSN is set before attempting to open the database.
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No shared-cache: it's obsolete; WAL journal mode is a better solution.
	// - No foreign key constraints: it's currently disabled by default, but it's a
	// good practice to be explicit and prevent future surprises on SQLite upgrades.
	// - Journal mode set to WAL: it's the recommended journal mode for most applications
	// as it prevents locking issues.
	//
	// Notes:
	// - When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
	//
	// References:
	// - https://pkg.go.dev/modernc.org/sqlite#Driver.Open
	// - https://www.sqlite.org/sharedcache.html
	// - https://www.sqlite.org/pragma.html
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite handles concurrency through its own locking; a single connection
	// with WAL mode is the optimal pool configuration for local usage.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS repository (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	source TEXT NOT NULL,
	created_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS report (
	id TEXT PRIMARY KEY,
	repository_id TEXT NOT NULL,
	status TEXT NOT NULL,
	payload TEXT NOT NULL,
	markdown TEXT NOT NULL,
	created_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_report_repository_id ON report (repository_id);

CREATE TABLE IF NOT EXISTS migration_history (
	version TEXT PRIMARY KEY,
	created_ts BIGINT NOT NULL
);
`

func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

func (d *DB) GetSchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := d.db.QueryRowContext(ctx, "SELECT version FROM migration_history ORDER BY created_ts DESC, version DESC LIMIT 1").Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to read schema version")
	}
	return v, nil
}

func (d *DB) UpsertSchemaVersion(ctx context.Context, version string) error {
	stmt := "INSERT INTO migration_history (version, created_ts) VALUES (?, ?) ON CONFLICT(version) DO NOTHING"
	if _, err := d.db.ExecContext(ctx, stmt, version, time.Now().Unix()); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return nil
}

func (d *DB) CreateRepository(ctx context.Context, create *store.Repository) (*store.Repository, error) {
	fields := []string{"id", "name", "source", "created_ts"}
	args := []any{create.ID, create.Name, create.Source, create.CreatedTs}

	stmt := `INSERT INTO repository (` + strings.Join(fields, ", ") + `)
		VALUES (` + strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ") + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create repository")
	}

	return create, nil
}

func (d *DB) ListRepositories(ctx context.Context, find *store.FindRepository) ([]*store.Repository, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Name != nil {
		where, args = append(where, "name = ?"), append(args, *find.Name)
	}

	query := `SELECT id, name, source, created_ts FROM repository
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list repositories")
	}
	defer rows.Close()

	list := []*store.Repository{}
	for rows.Next() {
		repo := &store.Repository{}
		if err := rows.Scan(&repo.ID, &repo.Name, &repo.Source, &repo.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan repository")
		}
		list = append(list, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) DeleteRepository(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM repository WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete repository")
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM report WHERE repository_id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete repository reports")
	}
	return nil
}

func (d *DB) CreateReportRecord(ctx context.Context, create *store.ReportRecord) (*store.ReportRecord, error) {
	fields := []string{"id", "repository_id", "status", "payload", "markdown", "created_ts"}
	args := []any{create.ID, create.RepositoryID, create.Status, create.Payload, create.Markdown, create.CreatedTs}

	stmt := `INSERT INTO report (` + strings.Join(fields, ", ") + `)
		VALUES (` + strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ") + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create report")
	}

	return create, nil
}

func (d *DB) ListReportRecords(ctx context.Context, find *store.FindReportRecord) ([]*store.ReportRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.RepositoryID != nil {
		where, args = append(where, "repository_id = ?"), append(args, *find.RepositoryID)
	}
	if find.Status != nil {
		where, args = append(where, "status = ?"), append(args, *find.Status)
	}

	query := `SELECT id, repository_id, status, payload, markdown, created_ts FROM report
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reports")
	}
	defer rows.Close()

	list := []*store.ReportRecord{}
	for rows.Next() {
		record := &store.ReportRecord{}
		if err := rows.Scan(&record.ID, &record.RepositoryID, &record.Status, &record.Payload, &record.Markdown, &record.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan report")
		}
		list = append(list, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
