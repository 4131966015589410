package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DriverFactory creates a GORM dialector for a database driver.
type DriverFactory func(dsn string) gorm.Dialector

var driverFactories = map[string]DriverFactory{
	"sqlite":   sqlite.Open,
	"postgres": postgres.Open,
}

// GetDialector returns a dialector for the given driver name.
func GetDialector(driver, dsn string) (gorm.Dialector, error) {
	factory, ok := driverFactories[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", driver)
	}
	return factory(dsn), nil
}

// RegisterDriver adds a custom driver factory. Useful for tests or
// alternative dialects.
func RegisterDriver(name string, factory DriverFactory) {
	driverFactories[name] = factory
}
