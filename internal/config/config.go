package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	TempDir string `toml:"temp_dir"`
	LogDir  string `toml:"log_dir"`
	Bind    string `toml:"bind"`
}

// Discord contains the delivery channel credentials.
type Discord struct {
	Token     string `toml:"token"`
	ChannelID string `toml:"channel_id"`
}

// Delivery contains the artifact size policy.
//
// TargetSizeBytes is the budget the bitrate allocator aims for; it sits below
// MaxUploadBytes because container overhead and the audio stream are not
// perfectly predictable.
type Delivery struct {
	TargetSizeBytes int64 `toml:"target_size_bytes"`
	MaxUploadBytes  int64 `toml:"max_upload_bytes"`
}

// Encode contains transcoding engine settings.
type Encode struct {
	FFmpegBinary          string `toml:"ffmpeg_binary"`
	FFprobeBinary         string `toml:"ffprobe_binary"`
	AudioBitrateKbps      int    `toml:"audio_bitrate_kbps"`
	VideoBitrateFloorKbps int    `toml:"video_bitrate_floor_kbps"`
	FrameRate             int    `toml:"frame_rate"`
	ConcatWidth           int    `toml:"concat_width"`
	ConcatHeight          int    `toml:"concat_height"`
	Preset                string `toml:"preset"`
	Scale480BelowKbps     int    `toml:"scale_480_below_kbps"`
	Scale720BelowKbps     int    `toml:"scale_720_below_kbps"`
	ProbeTimeout          int    `toml:"probe_timeout"`
	EncodeTimeout         int    `toml:"encode_timeout"`
}

// Intake contains upload surface limits.
type Intake struct {
	MaxFiles     int   `toml:"max_files"`
	MaxFileBytes int64 `toml:"max_file_bytes"`
}

// Workflow contains render scheduling configuration.
type Workflow struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipforge.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Discord  Discord  `toml:"discord"`
	Delivery Delivery `toml:"delivery"`
	Encode   Encode   `toml:"encode"`
	Intake   Intake   `toml:"intake"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return value
// is the resolved path; the third reports whether a file existed there (when
// false, defaults are in effect).
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
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		candidate = defaultPath
	}

	expanded, err := expandPath(candidate)
	if err != nil {
		return "", false, fmt.Errorf("resolve config path: %w", err)
	}

	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// clobber an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the scratch and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TempDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the configured ffmpeg binary, defaulting to "ffmpeg".
func (c *Config) FFmpegBinary() string {
	if binary := strings.TrimSpace(c.Encode.FFmpegBinary); binary != "" {
		return binary
	}
	return "ffmpeg"
}

// FFprobeBinary returns the configured ffprobe binary, defaulting to "ffprobe".
func (c *Config) FFprobeBinary() string {
	if binary := strings.TrimSpace(c.Encode.FFprobeBinary); binary != "" {
		return binary
	}
	return "ffprobe"
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return abs, nil
}
