package storage

import (
	"path/filepath"
	"testing"

	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/statsagg"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, "particles", "stats", "meta")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAppliesMigrations(t *testing.T) {
	db := setupTestDB(t)
	var names []string
	rows, err := db.sql.Query(`SELECT name FROM sqlite_master WHERE type='table' ORDER BY name`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatal(err)
		}
		names = append(names, n)
	}
	want := map[string]bool{"particles": true, "stats": true, "meta": true}
	for _, n := range names {
		delete(want, n)
	}
	if len(want) != 0 {
		t.Fatalf("missing expected tables: %v (got %v)", want, names)
	}
}

func TestWriteStatsAndParticleRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	row := statsagg.Row{
		RunID:       "run-1",
		WindowStart: 1000,
		Frames:      10,
		Particles:   2,
		LWC:         0.123456789012345,
		MVD:         4.2e-5,
		Conc:        9.9,
	}
	if err := db.WriteStats(row); err != nil {
		t.Fatalf("WriteStats: %v", err)
	}

	var lwc float64
	if err := db.sql.QueryRow(`SELECT lwc FROM stats WHERE run_id = ?`, "run-1").Scan(&lwc); err != nil {
		t.Fatalf("query stats: %v", err)
	}
	if lwc != row.LWC {
		t.Fatalf("lwc round-trip mismatch: want %v, got %v", row.LWC, lwc)
	}

	f := model.File{Sensor: 1, Frame: 7}
	p := model.Particle{X: 1, Y: 2, Z: 3, Diam: 4e-5, DiamCorr: 3.8e-5, Circularity: 0.9, DynRange: 120}
	if err := db.WriteParticle("run-1", f, p); err != nil {
		t.Fatalf("WriteParticle: %v", err)
	}

	var diamCorr float64
	if err := db.sql.QueryRow(`SELECT diam_corr FROM particles WHERE run_id = ?`, "run-1").Scan(&diamCorr); err != nil {
		t.Fatalf("query particles: %v", err)
	}
	if diamCorr != p.DiamCorr {
		t.Fatalf("diam_corr round-trip mismatch: want %v, got %v", p.DiamCorr, diamCorr)
	}
}

func TestWriteStatsUpsertsSameWindow(t *testing.T) {
	db := setupTestDB(t)
	row := statsagg.Row{RunID: "run-1", WindowStart: 500, Frames: 1}
	if err := db.WriteStats(row); err != nil {
		t.Fatal(err)
	}
	row.Frames = 2
	if err := db.WriteStats(row); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := db.sql.QueryRow(`SELECT COUNT(*) FROM stats WHERE run_id = ? AND window_start_millis = ?`, "run-1", int64(500)).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row per (run_id, window_start), got %d", count)
	}
}

func TestWriteMetaIgnoresDuplicateRun(t *testing.T) {
	db := setupTestDB(t)
	if err := db.WriteMeta("run-1", model.Now(), "v1", "paths: {}"); err != nil {
		t.Fatal(err)
	}
	if err := db.WriteMeta("run-1", model.Now(), "v2", "paths: {}"); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := db.sql.QueryRow(`SELECT COUNT(*) FROM meta WHERE run_id = ?`, "run-1").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected one meta row per run_id, got %d", count)
	}
}
