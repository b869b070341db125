package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	if err := c.normalizeDetectors(); err != nil {
		return err
	}
	c.normalizeFFmpeg()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeClient()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.UploadsDir, err = c.expandUnderData(c.Paths.UploadsDir, defaultUploadsSubdir); err != nil {
		return fmt.Errorf("paths.uploads_dir: %w", err)
	}
	if c.Paths.OutputsDir, err = c.expandUnderData(c.Paths.OutputsDir, defaultOutputsSubdir); err != nil {
		return fmt.Errorf("paths.outputs_dir: %w", err)
	}
	if c.Paths.LogDir, err = c.expandUnderData(c.Paths.LogDir, defaultLogsSubdir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if value, ok := os.LookupEnv(apiBindEnv); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIBind = value
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) expandUnderData(value, subdir string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return filepath.Join(c.Paths.DataDir, subdir), nil
	}
	return expandPath(strings.TrimSpace(value))
}

func (c *Config) normalizeAPI() {
	if value, ok := os.LookupEnv(allowedOriginsEnv); ok && strings.TrimSpace(value) != "" {
		c.API.AllowedOrigins = strings.Split(value, ",")
	}
	origins := make([]string, 0, len(c.API.AllowedOrigins))
	seen := make(map[string]struct{}, len(c.API.AllowedOrigins))
	for _, origin := range c.API.AllowedOrigins {
		trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	c.API.AllowedOrigins = origins
}

func (c *Config) normalizeDetectors() error {
	c.Detectors.AudioCommand = trimArgs(c.Detectors.AudioCommand)
	c.Detectors.HandCommand = trimArgs(c.Detectors.HandCommand)

	var err error
	if strings.TrimSpace(c.Detectors.DefaultWeights) == "" {
		c.Detectors.DefaultWeights = filepath.Join(c.Paths.DataDir, defaultWeightsSubdir, defaultWeightsName)
	}
	if c.Detectors.DefaultWeights, err = expandPath(strings.TrimSpace(c.Detectors.DefaultWeights)); err != nil {
		return fmt.Errorf("detectors.default_weights: %w", err)
	}
	if c.Detectors.FallbackWeights, err = expandPath(strings.TrimSpace(c.Detectors.FallbackWeights)); err != nil {
		return fmt.Errorf("detectors.fallback_weights: %w", err)
	}
	return nil
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	c.FFmpeg.SubtitleStyle = strings.TrimSpace(c.FFmpeg.SubtitleStyle)
	if c.FFmpeg.SubtitleStyle == "" {
		c.FFmpeg.SubtitleStyle = defaultSubtitleStyle
	}
}

func (c *Config) normalizeHistory() error {
	if !c.History.Enabled {
		return nil
	}
	var err error
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Paths.DataDir, defaultHistoryName)
	}
	if c.History.Path, err = expandPath(strings.TrimSpace(c.History.Path)); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeClient() {
	c.Client.APIURL = strings.TrimRight(strings.TrimSpace(c.Client.APIURL), "/")
	if c.Client.APIURL == "" {
		c.Client.APIURL = "http://" + c.Paths.APIBind
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
