package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/jdziat/credibility-sync/pkg/httpapi"
	"github.com/jdziat/credibility-sync/pkg/worker"
)

var (
	serveAddr       string
	serveWithWorker bool
	serveDrain      time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Serves the sync, credibility, readiness and queue administration endpoints. With --worker the process also runs jobs.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to CREDSYNC_HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveWithWorker, "worker", false, "Also run a worker with the scheduler in this process")
	serveCmd.Flags().DurationVar(&serveDrain, "shutdown-timeout", 30*time.Second, "How long to wait for in-flight requests on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	sys, cfg, logger, err := openSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.HTTPAddr
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(sys, httpapi.WithLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	if serveWithWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sys.NewWorker(worker.WithScheduler(true)).Start(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveDrain)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	wg.Wait()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
