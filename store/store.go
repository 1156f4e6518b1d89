package store

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/repolens/repolens/internal/profile"
	"github.com/repolens/repolens/internal/version"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate creates the schema if it does not exist yet and records the binary's
// minor version. A database written by a newer binary is refused rather than
// silently reinterpreted.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return err
	}

	current := version.GetMinorVersion(version.Version)
	stored, err := s.driver.GetSchemaVersion(ctx)
	if err != nil {
		return err
	}
	if stored != "" && !version.IsVersionGreaterOrEqualThan(current, stored) {
		return errors.Errorf("database schema version %s is newer than binary version %s", stored, current)
	}
	if stored == current {
		return nil
	}
	return s.driver.UpsertSchemaVersion(ctx, current)
}

func (s *Store) CreateRepository(ctx context.Context, create *Repository) (*Repository, error) {
	if create.ID == "" {
		create.ID = shortuuid.New()
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreateRepository(ctx, create)
}

func (s *Store) ListRepositories(ctx context.Context, find *FindRepository) ([]*Repository, error) {
	return s.driver.ListRepositories(ctx, find)
}

func (s *Store) GetRepository(ctx context.Context, find *FindRepository) (*Repository, error) {
	list, err := s.driver.ListRepositories(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("repository id required")
	}
	return s.driver.DeleteRepository(ctx, id)
}

func (s *Store) CreateReportRecord(ctx context.Context, create *ReportRecord) (*ReportRecord, error) {
	if create.ID == "" {
		create.ID = shortuuid.New()
	}
	if create.RepositoryID == "" {
		return nil, errors.New("repository id required")
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreateReportRecord(ctx, create)
}

func (s *Store) ListReportRecords(ctx context.Context, find *FindReportRecord) ([]*ReportRecord, error) {
	return s.driver.ListReportRecords(ctx, find)
}

func (s *Store) GetReportRecord(ctx context.Context, find *FindReportRecord) (*ReportRecord, error) {
	list, err := s.driver.ListReportRecords(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
