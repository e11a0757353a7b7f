package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdziat/credibility-sync/pkg/queue"
	"github.com/jdziat/credibility-sync/pkg/security"
)

var pauseBy string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print queue health",
	Long:  "Prints per-queue metrics and advisory issues as JSON. Exits non-zero when issues are reported.",
	RunE:  runHealth,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics [queue...]",
	Short: "Print per-status job counts",
	RunE:  runMetrics,
}

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Print a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJob,
}

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Retry a failed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

var pauseCmd = &cobra.Command{
	Use:   "pause <queue>",
	Short: "Stop workers from claiming jobs in a queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runPause,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <queue>",
	Short: "Resume a paused queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	pauseCmd.Flags().StringVar(&pauseBy, "by", "cli", "Who paused the queue")
	rootCmd.AddCommand(healthCmd, metricsCmd, jobCmd, retryCmd, pauseCmd, resumeCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	sys, _, _, err := openSystem(cmd.Context())
	if err != nil {
		return err
	}
	defer sys.Close()

	h, err := sys.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if err := printJSON(h); err != nil {
		return err
	}
	if !h.Healthy {
		sys.Close()
		os.Exit(2)
	}
	return nil
}

func runMetrics(cmd *cobra.Command, args []string) error {
	sys, _, _, err := openSystem(cmd.Context())
	if err != nil {
		return err
	}
	defer sys.Close()

	queues := args
	if len(queues) == 0 {
		queues = sys.Queues()
	}
	out := make([]queue.Metrics, 0, len(queues))
	for _, q := range queues {
		m, err := sys.QueueMetrics(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("metrics for %s: %w", q, err)
		}
		out = append(out, m)
	}
	return printJSON(out)
}

func runJob(cmd *cobra.Command, args []string) error {
	sys, _, _, err := openSystem(cmd.Context())
	if err != nil {
		return err
	}
	defer sys.Close()

	job, err := sys.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	res, err := job.DecodeResult()
	if err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return printJSON(map[string]any{
		"id":          job.ID,
		"type":        job.Type,
		"queue":       job.Queue,
		"status":      job.Status,
		"attempt":     job.Attempt,
		"maxAttempts": job.MaxAttempts,
		"progress":    job.Progress,
		"lastError":   security.SanitizeErrorMessage(job.LastError),
		"createdAt":   job.CreatedAt,
		"finishedAt":  job.FinishedAt,
		"result":      res,
	})
}

func runRetry(cmd *cobra.Command, args []string) error {
	sys, _, _, err := openSystem(cmd.Context())
	if err != nil {
		return err
	}
	defer sys.Close()
	return sys.RetryJob(cmd.Context(), args[0])
}

func runPause(cmd *cobra.Command, args []string) error {
	sys, _, _, err := openSystem(cmd.Context())
	if err != nil {
		return err
	}
	defer sys.Close()
	return sys.PauseQueue(cmd.Context(), args[0], pauseBy)
}

func runResume(cmd *cobra.Command, args []string) error {
	sys, _, _, err := openSystem(cmd.Context())
	if err != nil {
		return err
	}
	defer sys.Close()
	return sys.ResumeQueue(cmd.Context(), args[0])
}
