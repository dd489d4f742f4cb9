package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDiscord(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateEncode(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDiscord() error {
	if c.Discord.Token == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/clipforge/config.toml"
		}
		return fmt.Errorf("discord.token is required; edit %s (create with 'clipforge config init')", defaultPath)
	}
	if c.Discord.ChannelID == "" {
		return errors.New("discord.channel_id must be set")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.TargetSizeBytes <= 0 {
		return errors.New("delivery.target_size_bytes must be positive")
	}
	if c.Delivery.MaxUploadBytes <= 0 {
		return errors.New("delivery.max_upload_bytes must be positive")
	}
	if c.Delivery.TargetSizeBytes >= c.Delivery.MaxUploadBytes {
		return errors.New("delivery.target_size_bytes must be below delivery.max_upload_bytes")
	}
	return nil
}

func (c *Config) validateEncode() error {
	if c.Encode.AudioBitrateKbps <= 0 {
		return errors.New("encode.audio_bitrate_kbps must be positive")
	}
	if c.Encode.VideoBitrateFloorKbps <= 0 {
		return errors.New("encode.video_bitrate_floor_kbps must be positive")
	}
	if c.Encode.FrameRate <= 0 {
		return errors.New("encode.frame_rate must be positive")
	}
	if c.Encode.ConcatWidth <= 0 || c.Encode.ConcatHeight <= 0 {
		return errors.New("encode.concat_width and encode.concat_height must be positive")
	}
	if c.Encode.Scale480BelowKbps <= 0 || c.Encode.Scale720BelowKbps <= c.Encode.Scale480BelowKbps {
		return errors.New("encode.scale_720_below_kbps must be above encode.scale_480_below_kbps")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
