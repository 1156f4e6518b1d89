package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	Migrate(ctx context.Context) error
	GetSchemaVersion(ctx context.Context) (string, error)
	UpsertSchemaVersion(ctx context.Context, version string) error

	CreateRepository(ctx context.Context, create *Repository) (*Repository, error)
	ListRepositories(ctx context.Context, find *FindRepository) ([]*Repository, error)
	DeleteRepository(ctx context.Context, id string) error

	CreateReportRecord(ctx context.Context, create *ReportRecord) (*ReportRecord, error)
	ListReportRecords(ctx context.Context, find *FindReportRecord) ([]*ReportRecord, error)
}
