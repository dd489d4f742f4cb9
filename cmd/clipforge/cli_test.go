package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"clipforge/internal/config"
	"clipforge/internal/queue"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TempDir = filepath.Join(base, "temp")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.Bind = "127.0.0.1:0"
	cfgVal.Discord.Token = "test-token"
	cfgVal.Discord.ChannelID = "chan-1"
	cfg := &cfgVal

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ntemp_dir = %q\nlog_dir = %q\nbind = %q\n\n[discord]\ntoken = %q\nchannel_id = %q\n",
		cfg.Paths.TempDir,
		cfg.Paths.LogDir,
		cfg.Paths.Bind,
		cfg.Discord.Token,
		cfg.Discord.ChannelID,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got %q", want, output)
	}
}

func TestConfigInitShowValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(env.baseDir, "fresh", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// A second init against the same path refuses to clobber.
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "channel_id = 'chan-1'")
	if strings.Contains(out, "test-token") {
		t.Fatal("config show leaked the token")
	}
}

func TestJobsListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list (empty): %v", err)
	}
	requireContains(t, out, "No jobs recorded")

	store, err := queue.Open(env.cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	job, err := store.NewJob(ctx, "friday montage", []queue.Clip{
		{Path: "/tmp/clip-a.mp4", Filename: "a.mp4", SizeBytes: 1000, DurationSeconds: 12},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	job.Status = queue.StatusDelivered
	job.Result = queue.ResultDelivered
	job.ArtifactBytes = 3 * 1024 * 1024
	job.VideoBitrateKbps = 565
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update job: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, _, err = runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "friday montage")
	requireContains(t, out, "delivered")
	requireContains(t, out, "3.00MB")

	out, _, err = runCLI(t, []string{"jobs", "show", job.ID[:8]}, env.configPath)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, job.ID)
	requireContains(t, out, "Bitrate:   565 kbps")
	requireContains(t, out, "a.mp4")

	if _, _, err := runCLI(t, []string{"jobs", "show", "nope"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown job id")
	}
}

func TestJobsListFiltersByStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	store, err := queue.Open(env.cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	seed := func(title string, status queue.Status, result queue.Result) {
		t.Helper()
		job, err := store.NewJob(ctx, title, []queue.Clip{
			{Path: "/tmp/clip.mp4", Filename: "clip.mp4", SizeBytes: 1000},
		}, nil, nil)
		if err != nil {
			t.Fatalf("NewJob: %v", err)
		}
		job.Status = status
		job.Result = result
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("update job: %v", err)
		}
	}
	seed("keeper", queue.StatusDelivered, queue.ResultDelivered)
	seed("flop", queue.StatusFailed, queue.ResultEncodeFailed)
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, _, err := runCLI(t, []string{"jobs", "list", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --status: %v", err)
	}
	requireContains(t, out, "flop")
	if strings.Contains(out, "keeper") {
		t.Fatalf("delivered job leaked through the failed filter: %q", out)
	}

	out, _, err = runCLI(t, []string{"jobs", "list", "--status", "pending"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --status pending: %v", err)
	}
	requireContains(t, out, "No jobs recorded")

	_, _, err = runCLI(t, []string{"jobs", "list", "--status", "transmogrifying"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
	requireContains(t, err.Error(), "delivered")
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	if got := truncate("short", 32); got != "short" {
		t.Fatalf("truncate = %q, want unchanged", got)
	}

	title := strings.Repeat("ü", 40)
	got := truncate(title, 32)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("ü", 31) + "…"; got != want {
		t.Fatalf("truncate = %q, want %q", got, want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "clipforge")
}
