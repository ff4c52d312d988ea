package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/divinesense-console/internal/profile"
	"github.com/hrygo/divinesense-console/store"
	"github.com/hrygo/divinesense-console/store/db/sqlite"
)

// NewDriver creates the local cache driver based on profile. Only sqlite is
// supported; the cache is a single-user local file.
func NewDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.CacheDriver {
	case "", "sqlite":
		driver, err := sqlite.NewDB(profile.CacheDSN())
		if err != nil {
			return nil, errors.Wrap(err, "create sqlite cache driver")
		}
		return driver, nil
	default:
		return nil, errors.Errorf("unknown cache driver %q: only 'sqlite' is supported", profile.CacheDriver)
	}
}
