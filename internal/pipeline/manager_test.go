package pipeline_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/fileutil"
	"clipforge/internal/logging"
	"clipforge/internal/pipeline"
	"clipforge/internal/queue"
	"clipforge/internal/services/ffmpeg"
	"clipforge/internal/testsupport"
)

type fakeProber struct {
	mu        sync.Mutex
	durations map[string]float64
	errs      map[string]error
	calls     int
}

func (p *fakeProber) Duration(_ context.Context, path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err := p.errs[path]; err != nil {
		return 0, err
	}
	return p.durations[path], nil
}

// fakeEncoder writes outputSize bytes to the output path (the final argument)
// unless err is set. An optional gate makes Encode block until released so
// tests can observe pool occupancy.
type fakeEncoder struct {
	mu         sync.Mutex
	err        error
	outputSize int
	gate       chan struct{}
	calls      int
	active     int
	maxActive  int
}

func (e *fakeEncoder) Encode(_ context.Context, args []string, _ func(ffmpeg.ProgressUpdate)) error {
	e.mu.Lock()
	e.calls++
	e.active++
	if e.active > e.maxActive {
		e.maxActive = e.active
	}
	gate := e.gate
	e.mu.Unlock()

	if gate != nil {
		<-gate
	}

	e.mu.Lock()
	e.active--
	e.mu.Unlock()

	if e.err != nil {
		return e.err
	}
	output := args[len(args)-1]
	return os.WriteFile(output, make([]byte, e.outputSize), 0o644)
}

func (e *fakeEncoder) encodeCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type panicEncoder struct{}

func (panicEncoder) Encode(context.Context, []string, func(ffmpeg.ProgressUpdate)) error {
	panic("encoder lost its mind")
}

type fixture struct {
	cfg       *config.Config
	store     *queue.Store
	messenger *testsupport.FakeMessenger
	manager   *pipeline.Manager
	clips     []pipeline.ClipUpload
}

func newFixture(t *testing.T, messenger *testsupport.FakeMessenger, encoder ffmpeg.Client, prober pipeline.Prober, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	manager := pipeline.NewManager(cfg, store, messenger, logging.NewNop(),
		pipeline.WithEncoder(encoder),
		pipeline.WithProber(prober),
	)
	t.Cleanup(manager.Stop)

	return &fixture{cfg: cfg, store: store, messenger: messenger, manager: manager}
}

func (f *fixture) addClip(t *testing.T, name string, size int) pipeline.ClipUpload {
	t.Helper()
	path := testsupport.WriteScratchFile(t, f.cfg.Paths.TempDir, name, size)
	clip := pipeline.ClipUpload{Path: path, Filename: name, SizeBytes: int64(size)}
	f.clips = append(f.clips, clip)
	return clip
}

func (f *fixture) submit(t *testing.T, title string, trimStart, trimEnd *float64) *queue.Job {
	t.Helper()
	job, err := f.manager.Submit(context.Background(), pipeline.Request{
		Title:     title,
		Clips:     f.clips,
		TrimStart: trimStart,
		TrimEnd:   trimEnd,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return job
}

func waitForTerminal(t *testing.T, store *queue.Store, id string) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return nil
}

func assertScratchRemoved(t *testing.T, f *fixture, job *queue.Job) {
	t.Helper()
	for _, clip := range f.clips {
		if fileutil.Exists(clip.Path) {
			t.Errorf("clip %s survived cleanup", clip.Path)
		}
	}
	if job.OutputPath != "" && fileutil.Exists(job.OutputPath) {
		t.Errorf("output %s survived cleanup", job.OutputPath)
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestManagerDeliversMontage(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	encoder := &fakeEncoder{outputSize: 2048}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, encoder, prober)

	a := f.addClip(t, "a.mp4", 512)
	b := f.addClip(t, "b.mp4", 512)
	prober.durations[a.Path] = 40
	prober.durations[b.Path] = 80

	job := waitForTerminal(t, f.store, f.submit(t, "friday night", nil, nil).ID)

	if job.Status != queue.StatusDelivered || job.Result != queue.ResultDelivered {
		t.Fatalf("unexpected terminal state %s/%s (%s)", job.Status, job.Result, job.ErrorMessage)
	}
	// 9 MiB over 120 seconds alongside 64 kbps audio leaves 565 kbps of video.
	if job.VideoBitrateKbps != 565 {
		t.Errorf("video bitrate = %d, want 565", job.VideoBitrateKbps)
	}
	if job.ArtifactBytes != 2048 {
		t.Errorf("artifact bytes = %d, want 2048", job.ArtifactBytes)
	}

	sent := messenger.SentFiles()
	if len(sent) != 1 {
		t.Fatalf("sent %d files, want 1", len(sent))
	}
	if sent[0].Filename != "montage.mp4" {
		t.Errorf("filename = %q", sent[0].Filename)
	}
	if sent[0].Caption != "🎬 **friday night**" {
		t.Errorf("caption = %q", sent[0].Caption)
	}
	if sent[0].ChannelID != f.cfg.Discord.ChannelID {
		t.Errorf("channel = %q", sent[0].ChannelID)
	}

	msg := messenger.LastMessage()
	if msg == nil {
		t.Fatal("no status message posted")
	}
	if msg.Content != "⏳ cooking" {
		t.Errorf("status content = %q", msg.Content)
	}
	if !msg.WasDeleted() {
		t.Error("status message not deleted after delivery")
	}

	assertScratchRemoved(t, f, job)
}

func TestManagerSurvivesPartialProbeFailure(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	encoder := &fakeEncoder{outputSize: 1024}
	prober := &fakeProber{durations: map[string]float64{}, errs: map[string]error{}}
	f := newFixture(t, messenger, encoder, prober)

	a := f.addClip(t, "a.mp4", 256)
	b := f.addClip(t, "b.mp4", 256)
	c := f.addClip(t, "c.mp4", 256)
	prober.errs[a.Path] = errors.New("moov atom not found")
	prober.durations[b.Path] = 10
	prober.durations[c.Path] = 20

	job := waitForTerminal(t, f.store, f.submit(t, "raid", nil, nil).ID)

	if job.Result != queue.ResultDelivered {
		t.Fatalf("result = %s (%s)", job.Result, job.ErrorMessage)
	}
	// The unreadable clip contributes zero, so the budget spreads over 30s:
	// floor(9437184*8/30/1000) - 64 = 2452.
	if job.VideoBitrateKbps != 2452 {
		t.Errorf("video bitrate = %d, want 2452", job.VideoBitrateKbps)
	}
	assertScratchRemoved(t, f, job)
}

func TestManagerFailsWhenEveryProbeFails(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	encoder := &fakeEncoder{outputSize: 1024}
	probeErr := errors.New("invalid data found when processing input")
	prober := &fakeProber{errs: map[string]error{}}
	f := newFixture(t, messenger, encoder, prober)

	a := f.addClip(t, "a.mp4", 256)
	b := f.addClip(t, "b.mp4", 256)
	prober.errs[a.Path] = probeErr
	prober.errs[b.Path] = probeErr

	job := waitForTerminal(t, f.store, f.submit(t, "broken", nil, nil).ID)

	if job.Status != queue.StatusFailed || job.Result != queue.ResultProbeFailed {
		t.Fatalf("unexpected terminal state %s/%s", job.Status, job.Result)
	}
	if encoder.encodeCalls() != 0 {
		t.Error("encoder ran despite probe failure")
	}
	if got := messenger.LastMessage().LastEdit(); got != "ffmpeg processing error" {
		t.Errorf("status edit = %q", got)
	}
	assertScratchRemoved(t, f, job)
}

func TestManagerRejectsOversizeArtifact(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	// Ceiling of 4096 bytes; the encoder produces one byte over.
	encoder := &fakeEncoder{outputSize: 4097}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, encoder, prober, testsupport.WithDelivery(2048, 4096))

	a := f.addClip(t, "a.mp4", 256)
	prober.durations[a.Path] = 60

	job := waitForTerminal(t, f.store, f.submit(t, "chonk", nil, nil).ID)

	if job.Status != queue.StatusRejected || job.Result != queue.ResultRejectedTooBig {
		t.Fatalf("unexpected terminal state %s/%s", job.Status, job.Result)
	}
	if len(messenger.SentFiles()) != 0 {
		t.Error("oversize artifact was delivered")
	}
	edit := messenger.LastMessage().LastEdit()
	if !strings.HasPrefix(edit, "failed: too big (") || !strings.Contains(edit, "MB)") {
		t.Errorf("status edit = %q", edit)
	}
	if job.ArtifactBytes != 4097 {
		t.Errorf("artifact bytes = %d, want 4097", job.ArtifactBytes)
	}
	if !strings.Contains(job.ErrorMessage, "artifact exceeds upload ceiling") {
		t.Errorf("error message = %q, want upload ceiling classification", job.ErrorMessage)
	}
	assertScratchRemoved(t, f, job)
}

func TestManagerFailsWithoutChannel(t *testing.T) {
	messenger := &testsupport.FakeMessenger{ResolveErr: errors.New("unknown channel")}
	encoder := &fakeEncoder{outputSize: 1024}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, encoder, prober)

	a := f.addClip(t, "a.mp4", 256)
	prober.durations[a.Path] = 10

	job := waitForTerminal(t, f.store, f.submit(t, "nowhere", nil, nil).ID)

	if job.Result != queue.ResultNoChannel {
		t.Fatalf("result = %s", job.Result)
	}
	if messenger.LastMessage() != nil {
		t.Error("status message posted despite unreachable channel")
	}
	if encoder.encodeCalls() != 0 {
		t.Error("encoder ran despite unreachable channel")
	}
	assertScratchRemoved(t, f, job)
}

func TestManagerReportsEncodeFailure(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	encoder := &fakeEncoder{err: errors.New("exit status 1: height not divisible by 2")}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, encoder, prober)

	a := f.addClip(t, "a.mp4", 256)
	prober.durations[a.Path] = 10

	job := waitForTerminal(t, f.store, f.submit(t, "doomed", nil, nil).ID)

	if job.Status != queue.StatusFailed || job.Result != queue.ResultEncodeFailed {
		t.Fatalf("unexpected terminal state %s/%s", job.Status, job.Result)
	}
	if got := messenger.LastMessage().LastEdit(); got != "ffmpeg processing error" {
		t.Errorf("status edit = %q", got)
	}
	if len(messenger.SentFiles()) != 0 {
		t.Error("artifact delivered despite encode failure")
	}
	assertScratchRemoved(t, f, job)
}

func TestManagerReportsDeliveryFailure(t *testing.T) {
	messenger := &testsupport.FakeMessenger{SendErr: errors.New("413 payload too large")}
	encoder := &fakeEncoder{outputSize: 1024}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, encoder, prober)

	a := f.addClip(t, "a.mp4", 256)
	prober.durations[a.Path] = 10

	job := waitForTerminal(t, f.store, f.submit(t, "dropped", nil, nil).ID)

	if job.Status != queue.StatusFailed || job.Result != queue.ResultDeliveryFailed {
		t.Fatalf("unexpected terminal state %s/%s", job.Status, job.Result)
	}
	if got := messenger.LastMessage().LastEdit(); got != "Discord API error" {
		t.Errorf("status edit = %q", got)
	}
	assertScratchRemoved(t, f, job)
}

func TestManagerSwallowsStatusDeleteFailure(t *testing.T) {
	messenger := &testsupport.FakeMessenger{MessageDeleteErr: errors.New("404 unknown message")}
	encoder := &fakeEncoder{outputSize: 1024}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, encoder, prober)

	a := f.addClip(t, "a.mp4", 256)
	prober.durations[a.Path] = 10

	job := waitForTerminal(t, f.store, f.submit(t, "tidy", nil, nil).ID)

	if job.Result != queue.ResultDelivered {
		t.Fatalf("result = %s (%s)", job.Result, job.ErrorMessage)
	}
	if messenger.LastMessage().WasDeleted() {
		t.Error("delete recorded despite injected failure")
	}
	assertScratchRemoved(t, f, job)
}

func TestManagerTrimsSingleClip(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	encoder := &fakeEncoder{outputSize: 1024}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, encoder, prober)

	a := f.addClip(t, "long.mp4", 256)
	prober.durations[a.Path] = 600

	// A valid 120s window drives allocation, not the full 600s runtime.
	job := waitForTerminal(t, f.store, f.submit(t, "highlight", floatPtr(30), floatPtr(150)).ID)

	if job.Result != queue.ResultDelivered {
		t.Fatalf("result = %s (%s)", job.Result, job.ErrorMessage)
	}
	if job.VideoBitrateKbps != 565 {
		t.Errorf("video bitrate = %d, want 565", job.VideoBitrateKbps)
	}
	assertScratchRemoved(t, f, job)
}

func TestManagerRecoversFromWorkerPanic(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, panicEncoder{}, prober)

	a := f.addClip(t, "a.mp4", 256)
	prober.durations[a.Path] = 10

	job := waitForTerminal(t, f.store, f.submit(t, "boom", nil, nil).ID)

	if job.Status != queue.StatusFailed || job.Result != queue.ResultEncodeFailed {
		t.Fatalf("unexpected terminal state %s/%s", job.Status, job.Result)
	}
	if !strings.Contains(job.ErrorMessage, "internal error") {
		t.Errorf("error message = %q", job.ErrorMessage)
	}
	assertScratchRemoved(t, f, job)
}

func TestManagerBoundsConcurrency(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	gate := make(chan struct{})
	encoder := &fakeEncoder{outputSize: 1024, gate: gate}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, encoder, prober, testsupport.WithMaxConcurrentJobs(1))

	ids := make([]string, 0, 3)
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		path := testsupport.WriteScratchFile(t, f.cfg.Paths.TempDir, name, 256)
		prober.mu.Lock()
		prober.durations[path] = 10
		prober.mu.Unlock()
		job, err := f.manager.Submit(context.Background(), pipeline.Request{
			Title: "batch",
			Clips: []pipeline.ClipUpload{{Path: path, Filename: name, SizeBytes: 256}},
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, job.ID)
	}

	// Give the pool time to over-admit if it were going to.
	time.Sleep(100 * time.Millisecond)
	close(gate)

	for _, id := range ids {
		waitForTerminal(t, f.store, id)
	}

	encoder.mu.Lock()
	maxActive := encoder.maxActive
	encoder.mu.Unlock()
	if maxActive != 1 {
		t.Fatalf("observed %d concurrent encodes, want 1", maxActive)
	}
}

func TestSubmitReturnsDetachedJob(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	gate := make(chan struct{})
	encoder := &fakeEncoder{outputSize: 1024, gate: gate}
	prober := &fakeProber{durations: map[string]float64{}}
	f := newFixture(t, messenger, encoder, prober)

	a := f.addClip(t, "a.mp4", 256)
	prober.durations[a.Path] = 120

	job := f.submit(t, "detached", floatPtr(10), floatPtr(40))

	// The worker advances its own copy through probing, allocating and
	// encoding while we read the returned job. Under -race this fails if
	// Submit ever hands back the pointer the worker mutates.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if job.Status != queue.StatusPending {
			t.Fatalf("returned job status changed to %s", job.Status)
		}
		if !job.TrimWindowSet() {
			t.Fatal("returned job lost its trim window")
		}
		if job.Clips[0].DurationSeconds != 0 {
			t.Fatalf("returned job clip duration changed to %v", job.Clips[0].DurationSeconds)
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(gate)

	stored := waitForTerminal(t, f.store, job.ID)
	if stored.Result != queue.ResultDelivered {
		t.Fatalf("result = %s (%s)", stored.Result, stored.ErrorMessage)
	}
	if stored.Clips[0].DurationSeconds != 120 {
		t.Errorf("stored clip duration = %v, want 120", stored.Clips[0].DurationSeconds)
	}
	assertScratchRemoved(t, f, stored)
}

func TestSubmitRejectsEmptyRequest(t *testing.T) {
	messenger := &testsupport.FakeMessenger{}
	f := newFixture(t, messenger, &fakeEncoder{}, &fakeProber{})

	if _, err := f.manager.Submit(context.Background(), pipeline.Request{Title: "empty"}); err == nil {
		t.Fatal("expected error for request without clips")
	}
}
