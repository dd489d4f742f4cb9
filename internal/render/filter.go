package render

import (
	"fmt"
	"strconv"
	"strings"
)

// concatFilter builds the filter graph that normalizes every clip to a shared
// geometry, frame rate, and audio format, then concatenates them. The concat
// filter fails on mismatched streams, so each input passes through its own
// normalization stage first.
func concatFilter(count int, settings Settings) string {
	stages := make([]string, 0, count+1)
	tails := make([]string, 0, count)

	for i := 0; i < count; i++ {
		stages = append(stages, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:-1:-1,setsar=1,fps=%d[v%d];[%d:a]aformat=sample_rates=%d:channel_layouts=%s[a%d]",
			i, settings.ConcatWidth, settings.ConcatHeight, settings.ConcatWidth, settings.ConcatHeight, settings.FrameRate, i,
			i, audioSampleRate, audioChannelLayout, i,
		))
		tails = append(tails, fmt.Sprintf("[v%d][a%d]", i, i))
	}

	stages = append(stages, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[v][a]", strings.Join(tails, ""), count))
	return strings.Join(stages, ";")
}

// Args builds the complete ffmpeg argument list for the spec against the
// given input paths and output path.
func (s Spec) Args(inputs []string, outputPath string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	if s.Concat() {
		for _, input := range inputs {
			args = append(args, "-i", input)
		}
		args = append(args, "-filter_complex", s.FilterComplex, "-map", "[v]", "-map", "[a]")
	} else {
		if s.HasTrim {
			args = append(args, "-ss", formatSeconds(s.SeekSeconds))
		}
		args = append(args, "-i", inputs[0])
		if s.HasTrim {
			args = append(args, "-t", formatSeconds(s.DurationSeconds))
		}
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d,fps=%d", s.ScaleHeight, s.FrameRate))
	}

	args = append(args,
		"-b:v", kbps(s.VideoBitrateKbps),
		"-maxrate", kbps(s.VideoBitrateKbps),
		"-bufsize", kbps(s.VideoBitrateKbps*2),
		"-b:a", kbps(s.AudioBitrateKbps),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-preset", s.Preset,
		"-movflags", "+faststart",
		outputPath,
	)
	return args
}

func kbps(value int) string {
	return strconv.Itoa(value) + "k"
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
