package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/delivery"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/queue"
	"clipforge/internal/render"
	"clipforge/internal/services/ffmpeg"
)

// Prober measures a clip's duration in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// ClipUpload describes one file handed over by intake.
type ClipUpload struct {
	Path      string
	Filename  string
	SizeBytes int64
}

// Request is the job descriptor intake submits. TrimStart and TrimEnd apply
// only to single-clip jobs; an invalid window falls back to a full encode.
type Request struct {
	Title     string
	Clips     []ClipUpload
	TrimStart *float64
	TrimEnd   *float64
}

// Manager owns the render worker pool and the collaborators jobs need.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	messenger delivery.Messenger
	encoder   ffmpeg.Client
	prober    Prober
	logger    *slog.Logger
	settings  render.Settings

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithEncoder substitutes the transcoding engine client.
func WithEncoder(encoder ffmpeg.Client) Option {
	return func(m *Manager) { m.encoder = encoder }
}

// WithProber substitutes the duration prober.
func WithProber(prober Prober) Option {
	return func(m *Manager) { m.prober = prober }
}

// NewManager constructs a render pipeline manager.
func NewManager(cfg *config.Config, store *queue.Store, messenger delivery.Messenger, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	log := logger.With(logging.String("component", "pipeline"))
	m := &Manager{
		cfg:       cfg,
		store:     store,
		messenger: messenger,
		encoder:   ffmpeg.NewCLI(ffmpeg.WithBinary(cfg.FFmpegBinary())),
		prober:    ffprobeProber{binary: cfg.FFprobeBinary(), logger: log},
		logger:    log,
		settings:  render.SettingsFromConfig(cfg),
		sem:       make(chan struct{}, cfg.Workflow.MaxConcurrentJobs),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit persists the job and schedules it on the worker pool. The caller
// gets the pending job back immediately; it never waits for the render.
func (m *Manager) Submit(ctx context.Context, req Request) (*queue.Job, error) {
	if len(req.Clips) == 0 {
		return nil, errors.New("submit: no clips")
	}

	clips := make([]queue.Clip, 0, len(req.Clips))
	for _, upload := range req.Clips {
		if strings.TrimSpace(upload.Path) == "" {
			return nil, errors.New("submit: clip with empty path")
		}
		clips = append(clips, queue.Clip{
			Path:      upload.Path,
			Filename:  upload.Filename,
			SizeBytes: upload.SizeBytes,
		})
	}

	job, err := m.store.NewJob(ctx, req.Title, clips, req.TrimStart, req.TrimEnd)
	if err != nil {
		return nil, err
	}

	// The worker mutates job in place as it advances through stages, so
	// the caller gets a detached snapshot instead of the live pointer.
	snapshot := job.Clone()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case m.sem <- struct{}{}:
		case <-m.ctx.Done():
			// Shutdown before the job got a worker. The startup sweep
			// reaps its scratch files and marks it failed.
			return
		}
		defer func() { <-m.sem }()

		m.run(job)
	}()

	return snapshot, nil
}

// Stop cancels in-flight work and waits for workers to drain.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) probeDuration(ctx context.Context, path string, log *slog.Logger) float64 {
	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.Encode.ProbeTimeout)*time.Second)
	defer cancel()

	duration, err := m.prober.Duration(probeCtx, path)
	if err != nil {
		// One unreadable clip degrades to a zero contribution instead of
		// aborting the batch.
		log.Warn("probe failed, treating duration as zero",
			logging.String("clip", path),
			logging.Error(err),
		)
		return 0
	}
	return duration
}

type ffprobeProber struct {
	binary string
	logger *slog.Logger
}

func (p ffprobeProber) Duration(ctx context.Context, path string) (float64, error) {
	result, err := ffprobe.Inspect(ctx, p.binary, path)
	if err != nil {
		return 0, err
	}
	if width, height := result.VideoGeometry(); width > 0 {
		p.logger.Debug("clip geometry",
			logging.String("clip", path),
			logging.Int("width", width),
			logging.Int("height", height),
		)
	}
	if !result.HasAudio() {
		// A silent clip still encodes; its share of the audio budget is
		// simply wasted.
		p.logger.Warn("clip has no audio stream", logging.String("clip", path))
	}
	return result.DurationSeconds(), nil
}
