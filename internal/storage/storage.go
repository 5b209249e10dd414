// Package storage implements the particles/stats/meta SQLite writer,
// per spec.md §4.7: serialized writes behind a mutex, a connection health
// check before every query with a single reconnect attempt, and a hard
// error on the second failure. Schema is embedded and applied through
// golang-migrate, mirroring the teacher's internal/db.go embed+migrate
// shape but using modernc.org/sqlite's pure-Go driver throughout.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"image"
	"io/fs"
	"os"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/statsagg"
)

func rectFromXYWH(x, y, w, h int) image.Rectangle {
	return image.Rect(x, y, x+w, y+h)
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode selects the on-disk migrations directory instead of the
// embedded filesystem, for hot-reload iteration against a dev database.
var DevMode = false

func migrationsSource() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/storage/migrations"), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}

// DB is the process-wide handle described by spec.md §5 ("Database
// handle: owned by one process-wide instance, guarded by a mutex, reused
// across writes").
type DB struct {
	mu   sync.Mutex
	sql  *sql.DB
	path string

	tableParticles string
	tableStats     string
	tableMeta      string
}

var _ statsagg.Writer = (*DB)(nil)

// Open opens (creating if necessary) the SQLite database at path, applies
// pending migrations, and returns a ready writer. Table names come from
// config.DB so a single physical database can host more than one run's
// tables if the operator configures it that way.
func Open(path, tableParticles, tableStats, tableMeta string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("storage: ping %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("storage: pragma %q: %w", pragma, err)
		}
	}
	if err := migrateUp(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{
		sql:            sqlDB,
		path:           path,
		tableParticles: tableParticles,
		tableStats:     tableStats,
		tableMeta:      tableMeta,
	}, nil
}

func migrateUp(sqlDB *sql.DB) error {
	msrc, err := migrationsSource()
	if err != nil {
		return fmt.Errorf("storage: migrations fs: %w", err)
	}
	src, err := iofs.New(msrc, ".")
	if err != nil {
		return fmt.Errorf("storage: migrations source: %w", err)
	}
	drv, err := newSqliteDriver(sqlDB)
	if err != nil {
		return fmt.Errorf("storage: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "icemet", drv)
	if err != nil {
		return fmt.Errorf("storage: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("storage: migrate up: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

// ensureHealthy implements the health-check-then-reconnect-once rule of
// spec.md §4.7. Caller must hold d.mu.
func (d *DB) ensureHealthy() error {
	if err := d.sql.Ping(); err == nil {
		return nil
	}
	next, err := sql.Open("sqlite", d.path)
	if err != nil {
		return fmt.Errorf("storage: reconnect %s: %w", d.path, err)
	}
	if err := next.Ping(); err != nil {
		next.Close()
		return fmt.Errorf("storage: reconnect %s failed twice: %w", d.path, err)
	}
	d.sql.Close()
	d.sql = next
	return nil
}

// WriteStats implements statsagg.Writer.
func (d *DB) WriteStats(row statsagg.Row) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureHealthy(); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %q
		(run_id, window_start_millis, frames, particles, lwc, mvd, conc, temp, wind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, window_start_millis) DO UPDATE SET
			frames=excluded.frames, particles=excluded.particles,
			lwc=excluded.lwc, mvd=excluded.mvd, conc=excluded.conc,
			temp=excluded.temp, wind=excluded.wind`, d.tableStats)
	_, err := d.sql.Exec(q, row.RunID, int64(row.WindowStart), row.Frames, row.Particles,
		row.LWC, row.MVD, row.Conc, row.Temp, row.Wind)
	if err != nil {
		return fmt.Errorf("storage: write stats row: %w", err)
	}
	return nil
}

// WriteParticle persists one accepted particle, per spec.md §4.7 ("one
// particle row per accepted particle"). Called by internal/saver.
func (d *DB) WriteParticle(runID string, f model.File, p model.Particle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureHealthy(); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %q
		(run_id, sensor, ts_millis, frame, x, y, z, diam, diam_corr, circularity, dynrange, sub_x, sub_y, sub_w, sub_h)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, d.tableParticles)
	_, err := d.sql.Exec(q, runID, f.Sensor, int64(f.DT.Timestamp()), f.Frame,
		p.X, p.Y, p.Z, p.Diam, p.DiamCorr, p.Circularity, p.DynRange,
		p.SubRect.Min.X, p.SubRect.Min.Y, p.SubRect.Dx(), p.SubRect.Dy())
	if err != nil {
		return fmt.Errorf("storage: write particle row: %w", err)
	}
	return nil
}

// WriteMeta records one run's configuration snapshot and version string.
func (d *DB) WriteMeta(runID string, startedAt model.Timestamp, version, configYAML string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureHealthy(); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %q (run_id, started_at_millis, version, config_yaml) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING`, d.tableMeta)
	_, err := d.sql.Exec(q, runID, int64(startedAt), version, configYAML)
	if err != nil {
		return fmt.Errorf("storage: write meta row: %w", err)
	}
	return nil
}

// ReadParticleGroups reads back every persisted particle for runID,
// grouped by (sensor, ts_millis, frame), for the Source stage's
// stats-only (-s) rehydration mode. Frames that produced zero accepted
// particles were never written, so they cannot be reconstructed here —
// a run recomputed from -s mode only rebuilds the frames that have at
// least one surviving particle row; see internal/source's rehydrate.go.
func (d *DB) ReadParticleGroups(runID string) ([]model.ParticleGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureHealthy(); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT sensor, ts_millis, frame, x, y, z, diam, diam_corr, circularity, dynrange, sub_x, sub_y, sub_w, sub_h
		FROM %q WHERE run_id = ? ORDER BY ts_millis, frame`, d.tableParticles)
	rows, err := d.sql.Query(q, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: read particle groups: %w", err)
	}
	defer rows.Close()

	byKey := make(map[[3]int64]*model.ParticleGroup)
	var order [][3]int64
	for rows.Next() {
		var sensor uint8
		var ts int64
		var frame uint32
		var p model.Particle
		var subX, subY, subW, subH int
		if err := rows.Scan(&sensor, &ts, &frame, &p.X, &p.Y, &p.Z, &p.Diam, &p.DiamCorr,
			&p.Circularity, &p.DynRange, &subX, &subY, &subW, &subH); err != nil {
			return nil, fmt.Errorf("storage: scan particle group row: %w", err)
		}
		p.SubRect = rectFromXYWH(subX, subY, subW, subH)

		key := [3]int64{int64(sensor), ts, int64(frame)}
		g, ok := byKey[key]
		if !ok {
			g = &model.ParticleGroup{Sensor: sensor, TSMillis: ts, Frame: frame}
			byKey[key] = g
			order = append(order, key)
		}
		g.Particles = append(g.Particles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: read particle groups: %w", err)
	}

	groups := make([]model.ParticleGroup, len(order))
	for i, key := range order {
		groups[i] = *byKey[key]
	}
	return groups, nil
}
