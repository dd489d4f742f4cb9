package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"clipforge/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect render job history",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statusFilter queue.Status
			if strings.TrimSpace(statusFlag) != "" {
				parsed, ok := queue.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q (valid: %s)", statusFlag, strings.Join(statusNames(), ", "))
				}
				statusFilter = parsed
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer store.Close()

			// When filtering, fetch everything and cap after the filter so
			// the limit counts matching jobs.
			fetchLimit := limit
			if statusFilter != "" {
				fetchLimit = 0
			}
			jobs, err := store.List(cmd.Context(), fetchLimit)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				if statusFilter != "" && job.Status != statusFilter {
					continue
				}
				if limit > 0 && len(rows) == limit {
					break
				}
				rows = append(rows, []string{
					shortID(job.ID),
					truncate(job.Title, 32),
					statusLabel(job.Status, colorize),
					string(job.Result),
					fmt.Sprintf("%d", len(job.Clips)),
					formatBytes(job.ArtifactBytes),
					job.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}

			if len(rows) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}

			headers := []string{"ID", "Title", "Status", "Result", "Clips", "Size", "Created"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Only show jobs with this status")
	return cmd
}

func statusNames() []string {
	statuses := queue.AllStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return names
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer store.Close()

			job, err := store.Find(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %s\n", job.ID)
			fmt.Fprintf(out, "Title:     %s\n", job.Title)
			fmt.Fprintf(out, "Status:    %s\n", job.Status)
			if job.Result != "" {
				fmt.Fprintf(out, "Result:    %s\n", job.Result)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
			}
			if job.VideoBitrateKbps > 0 {
				fmt.Fprintf(out, "Bitrate:   %d kbps\n", job.VideoBitrateKbps)
			}
			if job.ArtifactBytes > 0 {
				fmt.Fprintf(out, "Artifact:  %s\n", formatBytes(job.ArtifactBytes))
			}
			if job.TrimWindowSet() {
				fmt.Fprintf(out, "Trim:      %.2fs to %.2fs\n", *job.TrimStart, *job.TrimEnd)
			}
			fmt.Fprintf(out, "Created:   %s\n", job.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "Updated:   %s\n", job.UpdatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "Clips:     %d\n", len(job.Clips))
			for _, clip := range job.Clips {
				fmt.Fprintf(out, "  - %s (%s, %.1fs)\n", clip.Filename, formatBytes(clip.SizeBytes), clip.DurationSeconds)
			}
			return nil
		},
	}
}

func statusLabel(status queue.Status, colorize bool) string {
	label := string(status)
	if !colorize {
		return label
	}
	switch status {
	case queue.StatusDelivered:
		return text.FgGreen.Sprint(label)
	case queue.StatusFailed, queue.StatusRejected:
		return text.FgRed.Sprint(label)
	default:
		return text.FgYellow.Sprint(label)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens value to max runes, never splitting a multibyte title.
func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}

func formatBytes(size int64) string {
	if size <= 0 {
		return "-"
	}
	const (
		kib = 1024
		mib = 1024 * kib
	)
	switch {
	case size >= mib:
		return fmt.Sprintf("%.2fMB", float64(size)/float64(mib))
	case size >= kib:
		return fmt.Sprintf("%.1fKB", float64(size)/float64(kib))
	default:
		return fmt.Sprintf("%dB", size)
	}
}
