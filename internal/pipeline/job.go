package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"clipforge/internal/delivery"
	"clipforge/internal/fileutil"
	"clipforge/internal/logging"
	"clipforge/internal/metrics"
	"clipforge/internal/queue"
	"clipforge/internal/render"
	"clipforge/internal/services"
	"clipforge/internal/services/ffmpeg"
)

// User-facing status message texts. The status line is the only feedback the
// requester sees, so every fatal outcome maps to exactly one edit.
const (
	statusCooking       = "⏳ cooking"
	statusEncodeError   = "ffmpeg processing error"
	statusDeliveryError = "Discord API error"
)

const artifactFilename = "montage.mp4"

// persistTimeout bounds store writes and best-effort status edits so shutdown
// never hangs on a slow disk or API.
const persistTimeout = 10 * time.Second

// run executes one job to a terminal state. Cleanup runs exactly once on
// every exit path, including panics, because it is deferred before anything
// else can fail.
func (m *Manager) run(job *queue.Job) {
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	log := m.logger.With(logging.String("job_id", job.ID))

	defer m.cleanup(job, log)
	defer func() {
		if r := recover(); r == nil {
			return
		} else if !job.IsTerminal() {
			job.SetFailed(queue.ResultEncodeFailed, fmt.Sprintf("internal error: %v", r))
			m.persist(job, log)
			metrics.JobsTotal.WithLabelValues(string(job.Result)).Inc()
			log.Error("job panicked", logging.Any("panic", r))
		}
	}()

	m.execute(job, log)
}

func (m *Manager) execute(job *queue.Job, log *slog.Logger) {
	ctx := m.ctx
	channelID := m.cfg.Discord.ChannelID

	if err := m.messenger.ResolveChannel(ctx, channelID); err != nil {
		wrapped := services.Wrap(services.ErrNoChannel, "delivery", "resolve channel", channelID, err)
		log.Error("delivery channel unreachable", logging.Error(wrapped))
		// No status post is possible without a channel, so this failure is
		// terminal and silent on the Discord side.
		m.fail(job, nil, queue.ResultNoChannel, wrapped.Error(), "", log)
		return
	}

	status, err := m.messenger.PostStatus(ctx, channelID, statusCooking)
	if err != nil {
		wrapped := services.Wrap(services.ErrNoChannel, "delivery", "post status", channelID, err)
		log.Error("status post failed", logging.Error(wrapped))
		m.fail(job, nil, queue.ResultNoChannel, wrapped.Error(), "", log)
		return
	}

	// Probe. Individual failures degrade to a zero duration; the job only
	// dies when no clip yields any duration at all.
	m.transition(job, queue.StatusProbing, log)
	total := 0.0
	for i := range job.Clips {
		duration := m.probeDuration(ctx, job.Clips[i].Path, log)
		job.Clips[i].DurationSeconds = duration
		total += duration
	}
	if total <= 0 {
		wrapped := services.Wrap(services.ErrProbe, "probe", "measure durations", "no clip produced a usable duration", nil)
		log.Error("probing failed for every clip", logging.Error(wrapped))
		m.fail(job, status, queue.ResultProbeFailed, wrapped.Error(), statusEncodeError, log)
		return
	}
	log.Info("clips probed",
		logging.Int("clips", len(job.Clips)),
		logging.Float64("total_seconds", total),
	)

	// Allocate.
	m.transition(job, queue.StatusAllocating, log)
	spec := render.Plan(renderClips(job.Clips), trimWindow(job), m.settings)
	job.VideoBitrateKbps = spec.VideoBitrateKbps
	job.OutputPath = filepath.Join(m.cfg.Paths.TempDir, "final_"+job.ID+".mp4")
	log.Info("bitrate allocated",
		logging.Int("video_kbps", spec.VideoBitrateKbps),
		logging.Bool("concat", spec.Concat()),
		logging.Int("scale_height", spec.ScaleHeight),
	)

	// Encode.
	m.transition(job, queue.StatusEncoding, log)
	if err := m.encode(job, spec, log); err != nil {
		wrapped := services.Wrap(services.ErrEncode, "encode", "run ffmpeg", "", err)
		log.Error("encode failed", logging.Error(wrapped))
		m.fail(job, status, queue.ResultEncodeFailed, wrapped.Error(), statusEncodeError, log)
		return
	}

	// Size check.
	m.transition(job, queue.StatusSizeChecking, log)
	size, err := fileutil.FileSize(job.OutputPath)
	if err != nil {
		wrapped := services.Wrap(services.ErrEncode, "encode", "stat output", job.OutputPath, err)
		log.Error("output missing after encode", logging.Error(wrapped))
		m.fail(job, status, queue.ResultEncodeFailed, wrapped.Error(), statusEncodeError, log)
		return
	}
	job.ArtifactBytes = size
	metrics.ArtifactBytes.Observe(float64(size))
	if size > m.cfg.Delivery.MaxUploadBytes {
		m.reject(job, status, size, log)
		return
	}

	// Upload.
	m.transition(job, queue.StatusUploading, log)
	caption := fmt.Sprintf("🎬 **%s**", job.Title)
	if err := m.messenger.SendFile(ctx, channelID, caption, artifactFilename, job.OutputPath); err != nil {
		wrapped := services.Wrap(services.ErrDelivery, "delivery", "send file", channelID, err)
		log.Error("delivery failed", logging.Error(wrapped))
		m.fail(job, status, queue.ResultDeliveryFailed, wrapped.Error(), statusDeliveryError, log)
		return
	}

	job.Status = queue.StatusDelivered
	job.Result = queue.ResultDelivered
	m.persist(job, log)
	metrics.JobsTotal.WithLabelValues(string(queue.ResultDelivered)).Inc()
	log.Info("montage delivered", logging.Int64("bytes", size))

	// The cooking line has served its purpose; removal is cosmetic.
	deleteCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := status.Delete(deleteCtx); err != nil {
		log.Debug("status delete failed", logging.Error(err))
	}
}

func (m *Manager) encode(job *queue.Job, spec render.Spec, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(m.ctx, time.Duration(m.cfg.Encode.EncodeTimeout)*time.Second)
	defer cancel()

	inputs := make([]string, 0, len(job.Clips))
	for _, clip := range job.Clips {
		inputs = append(inputs, clip.Path)
	}

	start := time.Now()
	err := m.encoder.Encode(ctx, spec.Args(inputs, job.OutputPath), func(update ffmpeg.ProgressUpdate) {
		log.Debug("encode progress",
			logging.Float64("out_time_seconds", update.OutTimeSeconds),
			logging.String("speed", update.Speed),
		)
	})
	metrics.EncodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if !fileutil.Exists(job.OutputPath) {
		return fmt.Errorf("ffmpeg exited cleanly but produced no output at %s", job.OutputPath)
	}
	return nil
}

// reject marks an over-ceiling artifact. The status line carries the measured
// size so the requester knows what to trim; the artifact never leaves disk.
func (m *Manager) reject(job *queue.Job, status delivery.StatusMessage, size int64, log *slog.Logger) {
	megabytes := float64(size) / (1024 * 1024)
	job.Status = queue.StatusRejected
	job.Result = queue.ResultRejectedTooBig
	wrapped := services.Wrap(services.ErrTooLarge, "delivery", "size check",
		fmt.Sprintf("artifact is %d bytes, ceiling is %d", size, m.cfg.Delivery.MaxUploadBytes), nil)
	job.ErrorMessage = wrapped.Error()
	m.persist(job, log)
	metrics.JobsTotal.WithLabelValues(string(queue.ResultRejectedTooBig)).Inc()
	log.Warn("artifact over upload ceiling",
		logging.Int64("bytes", size),
		logging.Int64("ceiling", m.cfg.Delivery.MaxUploadBytes),
	)
	m.editStatus(status, fmt.Sprintf("failed: too big (%.2fMB)", megabytes), log)
}

// fail drives the job to StatusFailed, records the result, and makes the
// single user-visible status edit when a handle and text are available.
func (m *Manager) fail(job *queue.Job, status delivery.StatusMessage, result queue.Result, message, statusText string, log *slog.Logger) {
	job.SetFailed(result, message)
	m.persist(job, log)
	metrics.JobsTotal.WithLabelValues(string(result)).Inc()
	if status != nil && statusText != "" {
		m.editStatus(status, statusText, log)
	}
}

func (m *Manager) transition(job *queue.Job, status queue.Status, log *slog.Logger) {
	job.Status = status
	m.persist(job, log)
}

// persist writes job state with its own deadline so terminal updates survive
// manager shutdown. Failures are logged and swallowed; losing a row is better
// than wedging a worker.
func (m *Manager) persist(job *queue.Job, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.Update(ctx, job); err != nil {
		log.Warn("job state update failed",
			logging.String("status", string(job.Status)),
			logging.Error(err),
		)
	}
}

func (m *Manager) editStatus(status delivery.StatusMessage, content string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := status.Edit(ctx, content); err != nil {
		log.Warn("status edit failed", logging.Error(err))
	}
}

// cleanup removes every scratch file the job owned. It runs exactly once per
// job, on every terminal path, and never escalates delete failures.
func (m *Manager) cleanup(job *queue.Job, log *slog.Logger) {
	paths := make([]string, 0, len(job.Clips)+1)
	for _, clip := range job.Clips {
		paths = append(paths, clip.Path)
	}
	if job.OutputPath != "" {
		paths = append(paths, job.OutputPath)
	}

	for _, path := range paths {
		removed, err := fileutil.RemoveIfExists(path)
		if err != nil {
			log.Warn("scratch file removal failed",
				logging.String("path", path),
				logging.Error(err),
			)
			continue
		}
		if removed {
			log.Debug("scratch file removed", logging.String("path", path))
		}
	}
}

func renderClips(clips []queue.Clip) []render.Clip {
	out := make([]render.Clip, 0, len(clips))
	for _, clip := range clips {
		out = append(out, render.Clip{
			Path:            clip.Path,
			Filename:        clip.Filename,
			SizeBytes:       clip.SizeBytes,
			DurationSeconds: clip.DurationSeconds,
		})
	}
	return out
}

func trimWindow(job *queue.Job) *render.TrimWindow {
	if len(job.Clips) != 1 || !job.TrimWindowSet() {
		return nil
	}
	return &render.TrimWindow{StartSeconds: *job.TrimStart, EndSeconds: *job.TrimEnd}
}
