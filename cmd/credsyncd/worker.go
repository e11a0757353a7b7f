package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/jdziat/credibility-sync/pkg/worker"
)

var workerNoScheduler bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run sync and notification workers",
	Long:  "Claims and runs jobs from the sync and notifications queues until interrupted. The due-sync scheduler runs in this process unless disabled.",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&workerNoScheduler, "no-scheduler", false, "Do not run recurring jobs in this worker")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	sys, _, _, err := openSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	err = sys.NewWorker(worker.WithScheduler(!workerNoScheduler)).Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
