package config

const (
	defaultTempDir           = "~/.local/share/clipforge/temp"
	defaultLogDir            = "~/.local/share/clipforge/logs"
	defaultBind              = "127.0.0.1:8080"
	defaultTargetSizeBytes   = 9 * 1024 * 1024
	defaultMaxUploadBytes    = 10 * 1024 * 1024
	defaultAudioBitrateKbps  = 64
	defaultBitrateFloorKbps  = 100
	defaultFrameRate         = 30
	defaultConcatWidth       = 1280
	defaultConcatHeight      = 720
	defaultPreset            = "veryfast"
	defaultScale480Below     = 600
	defaultScale720Below     = 1500
	defaultProbeTimeout      = 30
	defaultEncodeTimeout     = 1800
	defaultIntakeMaxFiles    = 20
	defaultIntakeMaxBytes    = 500 * 1024 * 1024
	defaultMaxConcurrentJobs = 2
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TempDir: defaultTempDir,
			LogDir:  defaultLogDir,
			Bind:    defaultBind,
		},
		Delivery: Delivery{
			TargetSizeBytes: defaultTargetSizeBytes,
			MaxUploadBytes:  defaultMaxUploadBytes,
		},
		Encode: Encode{
			AudioBitrateKbps:      defaultAudioBitrateKbps,
			VideoBitrateFloorKbps: defaultBitrateFloorKbps,
			FrameRate:             defaultFrameRate,
			ConcatWidth:           defaultConcatWidth,
			ConcatHeight:          defaultConcatHeight,
			Preset:                defaultPreset,
			Scale480BelowKbps:     defaultScale480Below,
			Scale720BelowKbps:     defaultScale720Below,
			ProbeTimeout:          defaultProbeTimeout,
			EncodeTimeout:         defaultEncodeTimeout,
		},
		Intake: Intake{
			MaxFiles:     defaultIntakeMaxFiles,
			MaxFileBytes: defaultIntakeMaxBytes,
		},
		Workflow: Workflow{
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
