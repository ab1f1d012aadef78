// Package config provides configuration loading and validation for the
// causal BP/EM inference engine.
//
// Configuration file: /etc/causalbp/config.yaml (default)
// Schema version: 1
//
// Validation:
//   - All numeric ranges are enforced (tol > 0, damping in [0,1), etc.).
//   - File paths must be absolute.
//   - Invalid config on load: the caller refuses to start (fatal error).

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/causalbp/causalbp/internal/causalbp"
	"github.com/causalbp/causalbp/internal/causalem"
	"github.com/causalbp/causalbp/internal/storage"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for the engine.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// Engine configures the BP engine's numerical and scheduling behaviour.
	Engine EngineConfig `yaml:"engine"`

	// EM configures the expectation-maximization driver.
	EM EMConfig `yaml:"em"`

	// Storage configures the bbolt checkpoint store.
	Storage StorageConfig `yaml:"storage"`

	// Observability configures metrics and logging.
	Observability ObservabilityConfig `yaml:"observability"`
}

// EngineConfig mirrors causalbp.Options in YAML form.
type EngineConfig struct {
	// Tol is the convergence tolerance on the per-variable belief
	// L-infinity change. Default: 1e-9.
	Tol float64 `yaml:"tol"`

	// MaxIter bounds the classic Run loop's sweep count. Default: 10000.
	MaxIter int `yaml:"max_iter"`

	// MaxTime bounds wall-clock time per run; zero means unbounded.
	MaxTime time.Duration `yaml:"max_time"`

	// Verbose controls per-sweep debug logging density.
	Verbose int `yaml:"verbose"`

	// LogDomain runs message arithmetic in the log domain.
	LogDomain bool `yaml:"log_domain"`

	// Damping is the convex-combination weight kept from the previous
	// message on each update. Range: [0, 1). Default: 0.
	Damping float64 `yaml:"damping"`

	// Updates selects the schedule: parall, seqfix, or seqrnd.
	Updates string `yaml:"updates"`

	// FastCausal disables the equal-arm residual correction in the
	// closed-form And/Or messages and skips renormalising the leave-one-out
	// incoming messages.
	FastCausal bool `yaml:"fast_causal"`
}

// EMConfig mirrors causalem.Options.
type EMConfig struct {
	// MaxIters bounds the number of EM rounds. Default: 30.
	MaxIters int `yaml:"max_iters"`

	// LogZTol is the relative log-likelihood improvement threshold below
	// which EM terminates. Default: 0.01.
	LogZTol float64 `yaml:"log_z_tol"`

	// MaxJobs bounds E-step concurrency. Default: number of CPUs.
	MaxJobs int `yaml:"max_jobs"`

	// PseudoCount is a Laplace smoothing count. It is validated but not
	// passed on: the registered conditional-probability estimation strategy
	// always uses a pseudocount of 1. Default: 1.0.
	PseudoCount float64 `yaml:"pseudo_count"`
}

// StorageConfig holds bbolt checkpoint-store parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the bbolt file.
	DBPath string `yaml:"db_path"`

	// RetentionDays is the run-history retention period. Default: 30.
	RetentionDays int `yaml:"retention_days"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	return Config{
		SchemaVersion: "1",
		Engine: EngineConfig{
			Tol:        1e-9,
			MaxIter:    10000,
			MaxTime:    0,
			Verbose:    0,
			LogDomain:  false,
			Damping:    0.0,
			Updates:    "parall",
			FastCausal: false,
		},
		EM: EMConfig{
			MaxIters:    30,
			LogZTol:     0.01,
			MaxJobs:     0, // 0 means runtime.NumCPU(), resolved by ToEMOptions
			PseudoCount: 1.0,
		},
		Storage: StorageConfig{
			DBPath:        storage.DefaultDBPath,
			RetentionDays: storage.DefaultRetentionDays,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness. Returns a descriptive
// error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.Engine.Tol <= 0 {
		errs = append(errs, fmt.Sprintf("engine.tol must be > 0, got %g", cfg.Engine.Tol))
	}
	if cfg.Engine.MaxIter < 1 {
		errs = append(errs, fmt.Sprintf("engine.max_iter must be >= 1, got %d", cfg.Engine.MaxIter))
	}
	if cfg.Engine.Damping < 0 || cfg.Engine.Damping >= 1 {
		errs = append(errs, fmt.Sprintf("engine.damping must be in [0, 1), got %g", cfg.Engine.Damping))
	}
	switch cfg.Engine.Updates {
	case "parall", "seqfix", "seqrnd":
	default:
		errs = append(errs, fmt.Sprintf("engine.updates must be one of parall, seqfix, seqrnd, got %q", cfg.Engine.Updates))
	}
	if cfg.EM.MaxIters < 1 {
		errs = append(errs, fmt.Sprintf("em.max_iters must be >= 1, got %d", cfg.EM.MaxIters))
	}
	if cfg.EM.LogZTol <= 0 {
		errs = append(errs, fmt.Sprintf("em.log_z_tol must be > 0, got %g", cfg.EM.LogZTol))
	}
	if cfg.EM.MaxJobs < 0 {
		errs = append(errs, fmt.Sprintf("em.max_jobs must be >= 0, got %d", cfg.EM.MaxJobs))
	}
	if cfg.EM.PseudoCount < 0 {
		errs = append(errs, fmt.Sprintf("em.pseudo_count must be >= 0, got %g", cfg.EM.PseudoCount))
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	} else if !filepath.IsAbs(cfg.Storage.DBPath) {
		errs = append(errs, fmt.Sprintf("storage.db_path must be absolute, got %q", cfg.Storage.DBPath))
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.retention_days must be >= 1, got %d", cfg.Storage.RetentionDays))
	}
	switch cfg.Observability.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_format must be json or console, got %q", cfg.Observability.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

// ToEngineOptions translates the YAML-facing EngineConfig into
// causalbp.Options.
func (c EngineConfig) ToEngineOptions() causalbp.Options {
	opts := causalbp.DefaultOptions()
	opts.Tol = c.Tol
	opts.MaxIter = c.MaxIter
	opts.MaxTime = c.MaxTime
	opts.Verbose = c.Verbose
	opts.LogDomain = c.LogDomain
	opts.Damping = c.Damping
	opts.FastCausal = c.FastCausal
	switch c.Updates {
	case "seqfix":
		opts.Updates = causalbp.SeqFix
	case "seqrnd":
		opts.Updates = causalbp.SeqRnd
	default:
		opts.Updates = causalbp.Parall
	}
	return opts
}

// ToEMOptions translates the YAML-facing EMConfig into causalem.Options,
// using the given engine options for each E-step's BP run.
func (c EMConfig) ToEMOptions(bp causalbp.Options) causalem.Options {
	opts := causalem.DefaultOptions()
	opts.MaxIters = c.MaxIters
	opts.LogZTol = c.LogZTol
	if c.MaxJobs > 0 {
		opts.MaxJobs = c.MaxJobs
	}
	opts.BP = bp
	return opts
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
