package render

import (
	"math"

	"clipforge/internal/config"
)

// Audio normalization applied before concatenation. The concat filter requires
// every stream to share one sample rate and channel layout.
const (
	audioSampleRate    = 44100
	audioChannelLayout = "stereo"
)

// minTotalDuration substitutes for an all-zero probe sum so bitrate math
// never divides by zero.
const minTotalDuration = 1.0

// Clip is one uploaded source with its probed duration. A zero duration means
// probing failed; the clip still encodes but contributes nothing to the
// bitrate budget.
type Clip struct {
	Path            string
	Filename        string
	SizeBytes       int64
	DurationSeconds float64
}

// TrimWindow bounds a single-clip encode in seconds.
type TrimWindow struct {
	StartSeconds float64
	EndSeconds   float64
}

// Valid reports whether the window selects a non-empty range. An inverted or
// empty window is treated the same as no trim request.
func (w TrimWindow) Valid() bool {
	return w.StartSeconds >= 0 && w.EndSeconds > w.StartSeconds
}

// Duration returns the selected range length in seconds.
func (w TrimWindow) Duration() float64 {
	return w.EndSeconds - w.StartSeconds
}

// Settings carries the configured encode policy into planning.
type Settings struct {
	TargetSizeBytes   int64
	AudioBitrateKbps  int
	BitrateFloorKbps  int
	FrameRate         int
	ConcatWidth       int
	ConcatHeight      int
	Preset            string
	Scale480BelowKbps int
	Scale720BelowKbps int
}

// SettingsFromConfig extracts planner settings from application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		TargetSizeBytes:   cfg.Delivery.TargetSizeBytes,
		AudioBitrateKbps:  cfg.Encode.AudioBitrateKbps,
		BitrateFloorKbps:  cfg.Encode.VideoBitrateFloorKbps,
		FrameRate:         cfg.Encode.FrameRate,
		ConcatWidth:       cfg.Encode.ConcatWidth,
		ConcatHeight:      cfg.Encode.ConcatHeight,
		Preset:            cfg.Encode.Preset,
		Scale480BelowKbps: cfg.Encode.Scale480BelowKbps,
		Scale720BelowKbps: cfg.Encode.Scale720BelowKbps,
	}
}

// Spec is the fully resolved transcode configuration for one job. Derived
// once by Plan and immutable afterwards.
type Spec struct {
	VideoBitrateKbps int
	AudioBitrateKbps int
	FrameRate        int
	Preset           string

	// Concat mode: the complete filter graph string. Empty in trim mode.
	FilterComplex string

	// Trim mode: tier-selected output height and optional seek window.
	ScaleHeight     int
	HasTrim         bool
	SeekSeconds     float64
	DurationSeconds float64
}

// Concat reports whether the spec describes a multi-clip concatenation.
func (s Spec) Concat() bool {
	return s.FilterComplex != ""
}

// AllocateBitrate computes the video bitrate in kbps that fits
// targetSizeBytes over totalDurationSeconds alongside the fixed audio stream,
// clamped to floorKbps. Durations at or below zero are substituted with a one
// second minimum.
func AllocateBitrate(targetSizeBytes int64, totalDurationSeconds float64, audioKbps, floorKbps int) int {
	if totalDurationSeconds <= 0 {
		totalDurationSeconds = minTotalDuration
	}
	totalKbps := float64(targetSizeBytes) * 8 / totalDurationSeconds / 1000
	videoKbps := int(math.Floor(totalKbps - float64(audioKbps)))
	if videoKbps < floorKbps {
		videoKbps = floorKbps
	}
	return videoKbps
}

// ScaleTier selects the output height for a single-clip encode from the
// allocated video bitrate. Boundary values belong to the higher tier.
func ScaleTier(videoKbps int, settings Settings) int {
	switch {
	case videoKbps < settings.Scale480BelowKbps:
		return 480
	case videoKbps < settings.Scale720BelowKbps:
		return 720
	default:
		return 1080
	}
}

// TotalDuration sums the probed clip durations. Failed probes contribute zero.
func TotalDuration(clips []Clip) float64 {
	total := 0.0
	for _, clip := range clips {
		if clip.DurationSeconds > 0 {
			total += clip.DurationSeconds
		}
	}
	return total
}

// Plan resolves the encode specification. Multiple clips produce a
// normalization-plus-concat graph; a single clip produces a trim/scale encode,
// honoring the window only when it is valid.
func Plan(clips []Clip, trim *TrimWindow, settings Settings) Spec {
	spec := Spec{
		AudioBitrateKbps: settings.AudioBitrateKbps,
		FrameRate:        settings.FrameRate,
		Preset:           settings.Preset,
	}

	if len(clips) > 1 {
		duration := TotalDuration(clips)
		spec.VideoBitrateKbps = AllocateBitrate(settings.TargetSizeBytes, duration, settings.AudioBitrateKbps, settings.BitrateFloorKbps)
		spec.FilterComplex = concatFilter(len(clips), settings)
		return spec
	}

	duration := TotalDuration(clips)
	if trim != nil && trim.Valid() {
		spec.HasTrim = true
		spec.SeekSeconds = trim.StartSeconds
		spec.DurationSeconds = trim.Duration()
		duration = trim.Duration()
	}
	spec.VideoBitrateKbps = AllocateBitrate(settings.TargetSizeBytes, duration, settings.AudioBitrateKbps, settings.BitrateFloorKbps)
	spec.ScaleHeight = ScaleTier(spec.VideoBitrateKbps, settings)
	return spec
}
