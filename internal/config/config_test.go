package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
paths:
  path_watch: /data/watch
  path_results: /data/results
db:
  sql_host: localhost
  sql_port: 3306
  sql_user: icemet
  sql_passwd: secret
  sql_database: icemet
  table_particles: particles
  table_stats: stats
  table_meta: meta
image:
  img_x: 0
  img_y: 0
  img_w: 2048
  img_h: 2048
  ignore_x: 16
  ignore_y: 16
  rotation: 0
bgsub:
  bgsub_stack_len: 5
empty_checks:
  empty_th_original: 5
  empty_th_preproc: 5
  empty_th_recon: 5
noisy_checks:
  noisy_th_recon: 50
filter:
  filt_lowpass: 0
hologram:
  holo_z0: 0.2
  holo_z1: 0.4
  holo_dz0: 0.0005
  holo_dz1: 0.002
  pixel_size: 0.000003
  lambda: 0.00000066
  distance: 0
  recon_step: 10
  focus_step: 1
  focus_method: icemet
  focus_method_small: std
segment:
  segment_th_factor: 0.8
  size_min: 4
  size_max: 500
  size_small: 20
  pad: 4
  scale: 100
particle:
  particle_th_factor: 0.5
  z_min: 0.2
  z_max: 0.4
  diam_min: 0.000002
  diam_max: 0.003
  diam_step: 0.000001
  circ_min: 0.5
  circ_max: 1.2
  dynrange_min: 5
  dynrange_max: 255
diam_corr:
  diam_corr: false
  d0: 0
  d1: 0
  f0: 1
  f1: 1
stats:
  stats_time: 60
  stats_frames: 0
ocl_device: ""
saves:
  save_results: "optmv"
  save_empty: false
  save_skipped: false
`

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hologram.Lambda <= 0 {
		t.Errorf("expected lambda to be parsed")
	}
	if cfg.BGSub.StackLen != 5 {
		t.Errorf("expected bgsub stack len 5, got %d", cfg.BGSub.StackLen)
	}
}

func TestValidateRejectsBadStackLen(t *testing.T) {
	cfg := &Config{
		Paths:    Paths{Watch: "w", Results: "r"},
		DB:       DB{Database: "d"},
		Image:    Image{W: 10, H: 10},
		BGSub:    BGSub{StackLen: 4},
		Hologram: Hologram{Z0: 0, Z1: 1, DZ0: 0.1, DZ1: 0.1, PixelSize: 1, Lambda: 1, ReconStep: 1},
		Particle: Particle{ZMin: 0, ZMax: 1, DiamMin: 0, DiamMax: 1},
		Stats:    Stats{Time: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for even bgsub stack length")
	}
}

func TestValidateRejectsBadSaveMask(t *testing.T) {
	cfg := &Config{
		Paths:    Paths{Watch: "w", Results: "r"},
		DB:       DB{Database: "d"},
		Image:    Image{W: 10, H: 10},
		Hologram: Hologram{Z0: 0, Z1: 1, DZ0: 0.1, DZ1: 0.1, PixelSize: 1, Lambda: 1, ReconStep: 1},
		Particle: Particle{ZMin: 0, ZMax: 1, DiamMin: 0, DiamMax: 1},
		Stats:    Stats{Time: 1},
		Saves:    Saves{Results: "oz"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid save mask char")
	}
}
