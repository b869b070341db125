package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	UploadsDir string `toml:"uploads_dir"`
	OutputsDir string `toml:"outputs_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// API contains HTTP surface settings.
type API struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxUploadMB    int      `toml:"max_upload_mb"`
}

// Detectors describes how the external detection pipelines are invoked.
// Commands are argv lists; the daemon appends its own flags.
type Detectors struct {
	AudioCommand    []string `toml:"audio_command"`
	HandCommand     []string `toml:"hand_command"`
	DefaultWeights  string   `toml:"default_weights"`
	FallbackWeights string   `toml:"fallback_weights"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
}

// FFmpeg contains the media tool settings used by the combiner and upload probe.
type FFmpeg struct {
	Binary        string `toml:"binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	ProbeUploads  bool   `toml:"probe_uploads"`
	SubtitleStyle string `toml:"subtitle_style"`
}

// Workflow contains job scheduling and artifact retention settings.
type Workflow struct {
	MaxConcurrentJobs      int `toml:"max_concurrent_jobs"`
	ArtifactRetentionHours int `toml:"artifact_retention_hours"`
	SweepIntervalMinutes   int `toml:"sweep_interval_minutes"`
}

// History controls the SQLite ledger of finished jobs.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Client contains settings used by CLI commands talking to a running daemon.
type Client struct {
	APIURL            string `toml:"api_url"`
	PollIntervalMS    int    `toml:"poll_interval_ms"`
	BackoffIntervalMS int    `toml:"backoff_interval_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for harp.
//
// Configuration sections by subsystem:
//   - Paths: data directories and API bind address
//   - API: CORS origins and upload limits
//   - Detectors: external audio/hand detection commands and default weights
//   - FFmpeg: combiner and probe binaries
//   - Workflow: concurrency limit and artifact retention
//   - History: finished-job ledger
//   - Client: CLI polling cadence and daemon URL
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	API       API       `toml:"api"`
	Detectors Detectors `toml:"detectors"`
	FFmpeg    FFmpeg    `toml:"ffmpeg"`
	Workflow  Workflow  `toml:"workflow"`
	History   History   `toml:"history"`
	Client    Client    `toml:"client"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/harp/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("harp.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.UploadsDir, c.Paths.OutputsDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.History.Enabled && c.History.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// DetectorTimeout returns the per-adapter timeout; zero means unbounded.
func (c *Config) DetectorTimeout() time.Duration {
	if c.Detectors.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Detectors.TimeoutSeconds) * time.Second
}

// ArtifactRetention returns how long finished job artifacts are kept; zero disables sweeping.
func (c *Config) ArtifactRetention() time.Duration {
	if c.Workflow.ArtifactRetentionHours <= 0 {
		return 0
	}
	return time.Duration(c.Workflow.ArtifactRetentionHours) * time.Hour
}

// SweepInterval returns the delay between artifact retention passes.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Workflow.SweepIntervalMinutes) * time.Minute
}

// PollInterval is the steady-state cadence for status polling.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Client.PollIntervalMS) * time.Millisecond
}

// BackoffInterval is the polling delay applied after a transient failure.
func (c *Config) BackoffInterval() time.Duration {
	return time.Duration(c.Client.BackoffIntervalMS) * time.Millisecond
}

// MaxUploadBytes converts the configured upload cap to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.API.MaxUploadMB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
