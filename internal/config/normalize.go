package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.Bind = strings.TrimSpace(c.Paths.Bind)
	if c.Paths.Bind == "" {
		c.Paths.Bind = defaultBind
	}

	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	if c.Discord.Token == "" {
		c.Discord.Token = strings.TrimSpace(os.Getenv("DISCORD_TOKEN"))
	}
	c.Discord.ChannelID = strings.TrimSpace(c.Discord.ChannelID)
	if c.Discord.ChannelID == "" {
		c.Discord.ChannelID = strings.TrimSpace(os.Getenv("CLIPS_CHANNEL_ID"))
	}

	c.Encode.FFmpegBinary = strings.TrimSpace(c.Encode.FFmpegBinary)
	c.Encode.FFprobeBinary = strings.TrimSpace(c.Encode.FFprobeBinary)
	c.Encode.Preset = strings.TrimSpace(c.Encode.Preset)
	if c.Encode.Preset == "" {
		c.Encode.Preset = defaultPreset
	}
	if c.Encode.ProbeTimeout <= 0 {
		c.Encode.ProbeTimeout = defaultProbeTimeout
	}
	if c.Encode.EncodeTimeout <= 0 {
		c.Encode.EncodeTimeout = defaultEncodeTimeout
	}

	if c.Intake.MaxFiles <= 0 {
		c.Intake.MaxFiles = defaultIntakeMaxFiles
	}
	if c.Intake.MaxFileBytes <= 0 {
		c.Intake.MaxFileBytes = defaultIntakeMaxBytes
	}
	if c.Workflow.MaxConcurrentJobs <= 0 {
		c.Workflow.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}

	c.normalizeLogging()
	return nil
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
