package db

import (
	"github.com/pkg/errors"

	"github.com/repolens/repolens/internal/profile"
	"github.com/repolens/repolens/store"
	"github.com/repolens/repolens/store/db/postgres"
	"github.com/repolens/repolens/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported database driver: %s", profile.Driver)
	}

	return driver, err
}
