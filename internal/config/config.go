// Package config provides unified configuration loading for boltlab.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the workspace configuration file.
const ConfigFileName = "boltlab.yaml"

// DatabaseFileName is the SQLite result repository inside the workspace.
const DatabaseFileName = "results.db"

// CasesDirName holds the per-case artifact directories.
const CasesDirName = "cases"

// BackupsDirName holds repository backup archives.
const BackupsDirName = "backups"

// Duration is a time.Duration that marshals to and from the usual
// "30m"/"90s" string form in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config contains all boltlab configuration settings.
type Config struct {
	// Solver configures the external finite-element solver invocation.
	Solver SolverConfig `json:"solver" yaml:"solver"`

	// Extraction configures the solver-output contract.
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`

	// Logging contains settings for operational and run-trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Backup configures result-repository backups.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// SolverConfig configures the external solver driver. The solver is a
// licensed, stateful executable; one case runs at a time.
type SolverConfig struct {
	// Command is the executable invoked per case, run inside the case's
	// artifact directory.
	Command string `json:"command" yaml:"command"`

	// Args are passed to the command before the Bush.blk path.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Timeout is the maximum wall-clock duration of one case run.
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// OutputFile is the punch file name the solver writes into the case
	// directory.
	OutputFile string `json:"output_file" yaml:"output_file"`
}

// ExtractionConfig pins the expected shape of solver output. The channel
// set and the frequency-grid length are fixed per model, not per study; a
// deviation means the extraction failed.
type ExtractionConfig struct {
	// Nodes are the monitored output nodes.
	Nodes []int `json:"nodes" yaml:"nodes"`

	// GridLength is the frequency-grid length of every channel.
	GridLength int `json:"grid_length" yaml:"grid_length"`
}

// LoggingConfig configures boltlab's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the per-case run trace in <root>/runtrace.jsonl.
	Level string `json:"level" yaml:"level"`
}

// BackupConfig configures repository backups and their retention.
type BackupConfig struct {
	// Retention decides which old backups are pruned after a new one is
	// written.
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig is the backup retention policy. A backup is kept if any
// configured rule keeps it; zero/empty values disable a rule.
type RetentionConfig struct {
	// MaxCount keeps the N most recent backups.
	MaxCount int `json:"max_count" yaml:"max_count"`

	// MaxAge keeps backups younger than this ("30d", "2w", "720h").
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	// MaxTotalSize caps the combined size of kept backups ("500MB", "2GB").
	MaxTotalSize string `json:"max_total_size,omitempty" yaml:"max_total_size,omitempty"`
}

// DefaultNodes are the monitored output nodes of the beam model.
var DefaultNodes = []int{1, 111, 222, 333, 444, 555, 666, 777, 888, 999, 1010, 1111}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			Command:    "",
			Timeout:    Duration(30 * time.Minute),
			OutputFile: "randombeamx.pch",
		},
		Extraction: ExtractionConfig{
			Nodes:      append([]int(nil), DefaultNodes...),
			GridLength: 500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Backup: BackupConfig{
			Retention: RetentionConfig{
				MaxCount: 10,
			},
		},
	}
}

// Load loads configuration from <root>/boltlab.yaml, falling back to
// defaults when the file does not exist, then applies environment variable
// overrides.
func Load(root string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(root, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No workspace config; defaults apply.
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write saves the configuration to <root>/boltlab.yaml.
func (c *Config) Write(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(root, ConfigFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Solver.Timeout <= 0 {
		return fmt.Errorf("solver timeout must be positive, got %v", c.Solver.Timeout)
	}
	if c.Solver.OutputFile == "" {
		return fmt.Errorf("solver output_file must not be empty")
	}
	if len(c.Extraction.Nodes) == 0 {
		return fmt.Errorf("extraction nodes must not be empty")
	}
	seen := make(map[int]bool, len(c.Extraction.Nodes))
	for _, n := range c.Extraction.Nodes {
		if seen[n] {
			return fmt.Errorf("duplicate extraction node %d", n)
		}
		seen[n] = true
	}
	if c.Extraction.GridLength <= 0 {
		return fmt.Errorf("extraction grid_length must be positive, got %d", c.Extraction.GridLength)
	}

	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOLTLAB_SOLVER_COMMAND"); v != "" {
		cfg.Solver.Command = v
	}
	if v := os.Getenv("BOLTLAB_SOLVER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Solver.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("BOLTLAB_GRID_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Extraction.GridLength = n
		}
	}
	if v := os.Getenv("BOLTLAB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Path returns the configuration file path inside the workspace.
func Path(root string) string {
	return filepath.Join(root, ConfigFileName)
}

// DatabasePath returns the repository path inside the workspace.
func DatabasePath(root string) string {
	return filepath.Join(root, DatabaseFileName)
}

// CasesRoot returns the directory holding all case artifact directories.
func CasesRoot(root string) string {
	return filepath.Join(root, CasesDirName)
}

// BackupsDir returns the directory holding backup archives.
func BackupsDir(root string) string {
	return filepath.Join(root, BackupsDirName)
}

// CaseDir returns the artifact directory for a case number.
func CaseDir(root string, caseNumber int) string {
	return filepath.Join(root, CasesDirName, fmt.Sprintf("case_%04d", caseNumber))
}
