package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/addertuner/internal/api"
	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/output"
	"github.com/bryanchriswhite/addertuner/internal/overlay"
	"github.com/bryanchriswhite/addertuner/internal/scheduler"
)

// session is what the transcode and play commands differ in
type session struct {
	name   string
	cycler scheduler.Cycler
	option api.Option

	// open binds the initial path on the scheduler goroutine
	open func(ctx context.Context, path string) error

	// reload receives every valid edit of the config file, on the
	// scheduler goroutine
	reload func(cfg *config.Config)
}

// serve runs s until SIGINT/SIGTERM: scheduler, MJPEG output and HTTP API
func serve(configMgr *config.Manager, cfg *config.Config, s session, path string) error {
	log := logger.WithComponent("cli")

	mjpegOut := output.NewMJPEGOutput(output.Config{
		Quality: cfg.Output.Quality,
		FPS:     cfg.CycleHz,
	})
	if err := mjpegOut.Start(); err != nil {
		return fmt.Errorf("failed to start MJPEG output: %w", err)
	}
	defer mjpegOut.Stop()

	sched := scheduler.New(s.cycler, float64(cfg.CycleHz), overlay.NewDefaultManager(cfg.Output.Overlay), mjpegOut)
	server := api.NewServer(configMgr, sched, mjpegOut, s.option)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	if path != "" {
		err := sched.Do(ctx, func(ctx context.Context) error {
			return s.open(ctx, path)
		})
		if err != nil {
			// the session keeps running; the error is shown as the source name
			log.Error().Err(err).Str("path", path).Msg("Failed to open source")
		}
	}

	configMgr.Watch(func(c *config.Config) {
		if err := sched.Submit(func(context.Context) { s.reload(c) }); err != nil {
			log.Debug().Err(err).Msg("Dropping config reload")
		}
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Str("mode", s.name).
		Str("view", fmt.Sprintf("http://localhost:%d/view", cfg.ServerPort)).
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Msg("addertuner is running, press Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		stop()
	}

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Msg("Server shutdown")
	}
	<-schedDone
	return runErr
}
