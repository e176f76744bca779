package astrodb

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// withMigrate builds a migrate instance over the open connection and
// hands it to fn. The instance is never closed; closing it would take
// the shared *sql.DB down with it.
func (db *AstroDB) withMigrate(migrationsDir string, fn func(*migrate.Migrate) error) error {
	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return fn(m)
}

// MigrateUp applies every pending migration. Already being at the
// newest version is not an error.
func (db *AstroDB) MigrateUp(migrationsDir string) error {
	return db.withMigrate(migrationsDir, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func (db *AstroDB) MigrateDown(migrationsDir string) error {
	return db.withMigrate(migrationsDir, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
		return nil
	})
}

// MigrateVersion reports the applied schema version and dirty flag. A
// database with no applied migrations reports version 0, clean.
func (db *AstroDB) MigrateVersion(migrationsDir string) (uint, bool, error) {
	var version uint
	var dirty bool
	err := db.withMigrate(migrationsDir, func(m *migrate.Migrate) error {
		v, d, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		version, dirty = v, d
		return err
	})
	return version, dirty, err
}

// MigrateForce overwrites the recorded version without running any
// migration. Recovery path for a dirty state.
func (db *AstroDB) MigrateForce(migrationsDir string, version int) error {
	return db.withMigrate(migrationsDir, func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force to version %d failed: %w", version, err)
		}
		return nil
	})
}

// migrateLogger forwards golang-migrate output to the service log.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// LatestMigrationVersion scans the *.up.sql filenames in migrationsDir
// (0001_name.up.sql) and returns the highest version present.
func LatestMigrationVersion(migrationsDir string) (uint, error) {
	entries, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return 0, fmt.Errorf("scan migrations dir: %w", err)
	}
	var latest uint
	for _, entry := range entries {
		var v uint
		if _, err := fmt.Sscanf(filepath.Base(entry), "%d_", &v); err == nil && v > latest {
			latest = v
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("no migration files in %s", migrationsDir)
	}
	return latest, nil
}
