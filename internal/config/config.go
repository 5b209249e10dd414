// Package config loads and validates the YAML configuration described in
// spec.md §6. It follows the same "validate on load, fatal on bad value"
// shape as the teacher's internal/config/tuning.go, adapted from JSON
// optional-pointer fields to a YAML config. Validate checks a fixed subset
// of keys; a key absent from the YAML takes its Go zero value and is
// rejected only where Validate checks that key.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Paths groups the watch/result filesystem roots.
type Paths struct {
	Watch   string `yaml:"path_watch"`
	Results string `yaml:"path_results"`
}

// DB groups the relational database target.
type DB struct {
	Host            string `yaml:"sql_host"`
	Port            int    `yaml:"sql_port"`
	User            string `yaml:"sql_user"`
	Passwd          string `yaml:"sql_passwd"`
	Database        string `yaml:"sql_database"`
	TableParticles  string `yaml:"table_particles"`
	TableStats      string `yaml:"table_stats"`
	TableMeta       string `yaml:"table_meta"`
}

// Image groups crop/interior-border/rotation geometry.
type Image struct {
	X        int     `yaml:"img_x"`
	Y        int     `yaml:"img_y"`
	W        int     `yaml:"img_w"`
	H        int     `yaml:"img_h"`
	IgnoreX  int     `yaml:"ignore_x"`
	IgnoreY  int     `yaml:"ignore_y"`
	Rotation float64 `yaml:"rotation"`
}

// BGSub controls background-subtraction ring length (0 disables).
type BGSub struct {
	StackLen int `yaml:"bgsub_stack_len"`
}

// EmptyChecks and NoisyChecks hold the dynamic-range/contour-count
// thresholds that drive Preproc's status classification. <=0 disables
// the corresponding check.
type EmptyChecks struct {
	OriginalTh float64 `yaml:"empty_th_original"`
	PreprocTh  float64 `yaml:"empty_th_preproc"`
	ReconTh    float64 `yaml:"empty_th_recon"`
}

type NoisyChecks struct {
	ReconTh int `yaml:"noisy_th_recon"`
}

// Filter controls the optional low-pass pre-filter (0 disables).
type Filter struct {
	LowpassF float64 `yaml:"filt_lowpass"`
}

// Hologram groups the reconstruction schedule and focus parameters.
type Hologram struct {
	Z0               float64 `yaml:"holo_z0"`
	Z1               float64 `yaml:"holo_z1"`
	DZ0              float64 `yaml:"holo_dz0"`
	DZ1              float64 `yaml:"holo_dz1"`
	PixelSize        float64 `yaml:"pixel_size"`
	Lambda           float64 `yaml:"lambda"`
	Distance         float64 `yaml:"distance"`
	ReconStep        int     `yaml:"recon_step"`
	FocusStep        int     `yaml:"focus_step"`
	FocusMethod      string  `yaml:"focus_method"`
	FocusMethodSmall string  `yaml:"focus_method_small"`
}

// Segment groups segmentation thresholds and geometry.
type Segment struct {
	ThFactor  float64 `yaml:"segment_th_factor"`
	SizeMin   int     `yaml:"size_min"`
	SizeMax   int     `yaml:"size_max"`
	SizeSmall int     `yaml:"size_small"`
	Pad       int     `yaml:"pad"`
	Scale     int     `yaml:"scale"`
}

// Particle groups the acceptance window and analysis threshold.
type Particle struct {
	ThFactor    float64 `yaml:"particle_th_factor"`
	ZMin        float64 `yaml:"z_min"`
	ZMax        float64 `yaml:"z_max"`
	DiamMin     float64 `yaml:"diam_min"`
	DiamMax     float64 `yaml:"diam_max"`
	DiamStep    float64 `yaml:"diam_step"`
	CircMin     float64 `yaml:"circ_min"`
	CircMax     float64 `yaml:"circ_max"`
	DynRangeMin int     `yaml:"dynrange_min"`
	DynRangeMax int     `yaml:"dynrange_max"`
}

// DiamCorr is the optional piecewise-linear diameter correction.
type DiamCorr struct {
	Enabled bool    `yaml:"diam_corr"`
	D0      float64 `yaml:"d0"`
	D1      float64 `yaml:"d1"`
	F0      float64 `yaml:"f0"`
	F1      float64 `yaml:"f1"`
}

// Stats groups the windowing and optional ambient-sensor fields.
type Stats struct {
	Time    float64  `yaml:"stats_time"`
	Frames  int      `yaml:"stats_frames"`
	Temp    *float64 `yaml:"stats_temp"`
	Wind    *float64 `yaml:"stats_wind"`
}

// Saves groups output persistence flags.
type Saves struct {
	Results string `yaml:"save_results"`
	Empty   bool   `yaml:"save_empty"`
	Skipped bool   `yaml:"save_skipped"`
}

// Config is the top-level validated configuration loaded from YAML.
type Config struct {
	Paths    Paths       `yaml:"paths"`
	DB       DB          `yaml:"db"`
	Image    Image       `yaml:"image"`
	BGSub    BGSub       `yaml:"bgsub"`
	Empty    EmptyChecks `yaml:"empty_checks"`
	Noisy    NoisyChecks `yaml:"noisy_checks"`
	Filter   Filter      `yaml:"filter"`
	Hologram Hologram    `yaml:"hologram"`
	Segment  Segment     `yaml:"segment"`
	Particle Particle    `yaml:"particle"`
	DiamCorr DiamCorr    `yaml:"diam_corr"`
	Stats    Stats       `yaml:"stats"`
	OCLDevice string     `yaml:"ocl_device"`
	Saves    Saves       `yaml:"saves"`
}

// Load reads and validates the YAML config at path. A parse error or a
// value rejected by Validate is a fatal (returned, non-nil) error. Missing
// keys are not detected as such: they decode to zero values, which fail
// only for the keys Validate checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks a subset of the keys described in spec.md §6 for
// presence/range; keys not listed below are not checked.
func (c *Config) Validate() error {
	if c.Paths.Watch == "" {
		return fmt.Errorf("paths.path_watch is required")
	}
	if c.Paths.Results == "" {
		return fmt.Errorf("paths.path_results is required")
	}
	if c.DB.Database == "" {
		return fmt.Errorf("db.sql_database is required")
	}
	if c.Image.W <= 0 || c.Image.H <= 0 {
		return fmt.Errorf("image.img_w/img_h must be positive")
	}
	if c.BGSub.StackLen != 0 {
		if c.BGSub.StackLen < 3 || c.BGSub.StackLen > 25 || c.BGSub.StackLen%2 == 0 {
			return fmt.Errorf("bgsub.bgsub_stack_len must be 0 or odd in [3,25], got %d", c.BGSub.StackLen)
		}
	}
	if c.Hologram.Z1 <= c.Hologram.Z0 {
		return fmt.Errorf("hologram.holo_z1 must be greater than holo_z0")
	}
	if c.Hologram.DZ0 <= 0 || c.Hologram.DZ1 <= 0 {
		return fmt.Errorf("hologram.holo_dz0/holo_dz1 must be positive")
	}
	if c.Hologram.PixelSize <= 0 {
		return fmt.Errorf("hologram.pixel_size must be positive")
	}
	if c.Hologram.Lambda <= 0 {
		return fmt.Errorf("hologram.lambda must be positive")
	}
	if c.Hologram.ReconStep <= 0 {
		return fmt.Errorf("hologram.recon_step must be positive")
	}
	if c.Segment.SizeMax < c.Segment.SizeMin {
		return fmt.Errorf("segment.size_max must be >= segment.size_min")
	}
	if c.Particle.ZMax <= c.Particle.ZMin {
		return fmt.Errorf("particle.z_max must be greater than particle.z_min")
	}
	if c.Particle.DiamMax <= c.Particle.DiamMin {
		return fmt.Errorf("particle.diam_max must be greater than particle.diam_min")
	}
	if c.Stats.Time <= 0 {
		return fmt.Errorf("stats.stats_time must be positive")
	}
	for _, ch := range c.Saves.Results {
		switch ch {
		case 'o', 'p', 'm', 'r', 't', 'v':
		default:
			return fmt.Errorf("saves.save_results: invalid mask character %q", ch)
		}
	}
	return nil
}

// WindowMillis returns the statistics window length in milliseconds.
func (s Stats) WindowMillis() int64 {
	return int64(s.Time * 1000)
}
