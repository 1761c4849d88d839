package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"householdledger/internal/log"
)

//go:embed migrations/*.sql
var journalMigrations embed.FS

// journalMigrator opens its own connection to dbPath; closing the migrator
// never touches the journal's pool. The returned func releases both.
func journalMigrator(dbPath string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration database: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite migration driver: %w", err)
	}
	source, err := iofs.New(journalMigrations, "migrations")
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrator: %w", err)
	}
	return m, func() {
		m.Close()
		db.Close()
	}, nil
}

// MigrateJournal applies every pending journal migration and returns the
// resulting schema version.
func MigrateJournal(dbPath string, logger *log.Logger) (uint, error) {
	m, release, err := journalMigrator(dbPath)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate journal: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("journal schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("journal schema version %d is dirty", version)
	}
	if logger != nil {
		logger.Debug("Journal schema up to date", "schema_version", version)
	}
	return version, nil
}
