package storage

import (
	"database/sql"
	"fmt"
	"io"
	"sync"

	"github.com/golang-migrate/migrate/v4/database"
)

// sqliteDriver adapts a modernc.org/sqlite *sql.DB to golang-migrate's
// database.Driver interface. golang-migrate ships a sqlite3 driver but it
// is built on the cgo mattn/go-sqlite3 binding; this module uses the
// pure-Go modernc.org/sqlite driver instead (teacher's internal/db.go
// picks modernc.org/sqlite for the same cgo-free reason), so migrate is
// wired via NewWithInstance against this small adapter rather than a
// database/sqlite3 url.
type sqliteDriver struct {
	db *sql.DB
	mu sync.Mutex
}

func newSqliteDriver(db *sql.DB) (*sqliteDriver, error) {
	d := &sqliteDriver{db: db}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL PRIMARY KEY, dirty BOOLEAN NOT NULL)`); err != nil {
		return nil, fmt.Errorf("storage: create schema_migrations: %w", err)
	}
	return d, nil
}

func (d *sqliteDriver) Open(url string) (database.Driver, error) {
	return nil, fmt.Errorf("storage: sqliteDriver.Open not supported, construct via NewWithInstance")
}

func (d *sqliteDriver) Close() error { return nil }

// Lock/Unlock serialize migration runs within this process. SQLite has no
// concept of a cross-process advisory lock here; the pipeline assumes one
// process owns the database file, matching spec.md §5's single
// process-wide DB handle.
func (d *sqliteDriver) Lock() error {
	d.mu.Lock()
	return nil
}

func (d *sqliteDriver) Unlock() error {
	d.mu.Unlock()
	return nil
}

func (d *sqliteDriver) Run(migration io.Reader) error {
	b, err := io.ReadAll(migration)
	if err != nil {
		return err
	}
	if _, err := d.db.Exec(string(b)); err != nil {
		return fmt.Errorf("storage: migration exec: %w", err)
	}
	return nil
}

func (d *sqliteDriver) SetVersion(version int, dirty bool) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM schema_migrations`); err != nil {
		tx.Rollback()
		return err
	}
	if version >= 0 {
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirty); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (d *sqliteDriver) Version() (int, bool, error) {
	var version int
	var dirty bool
	err := d.db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return database.NilVersion, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

func (d *sqliteDriver) Drop() error {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return err
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return err
		}
		names = append(names, n)
	}
	rows.Close()
	for _, n := range names {
		if _, err := d.db.Exec(fmt.Sprintf("DROP TABLE %q", n)); err != nil {
			return err
		}
	}
	return nil
}
