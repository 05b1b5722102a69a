package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/facegate/internal/config"
	"github.com/BrandonDHaskell/facegate/internal/db"
	"github.com/BrandonDHaskell/facegate/internal/display"
	"github.com/BrandonDHaskell/facegate/internal/facegate/pipeline"
	"github.com/BrandonDHaskell/facegate/internal/facegate/service"
	"github.com/BrandonDHaskell/facegate/internal/facegate/store"
	"github.com/BrandonDHaskell/facegate/internal/facegate/store/file"
	"github.com/BrandonDHaskell/facegate/internal/facegate/store/sqlite"
	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
	"github.com/BrandonDHaskell/facegate/internal/grpcapi"
	"github.com/BrandonDHaskell/facegate/internal/httpapi"
	"github.com/BrandonDHaskell/facegate/internal/metrics"
	"github.com/BrandonDHaskell/facegate/internal/vision"
)

const shutdownTimeout = 5 * time.Second

var autostart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture loop with the web UI and health endpoints",
	Long: `Load the classifier model, enrollment table and face detector, then serve
the control page, MJPEG stream and status API over HTTP plus the gRPC
health service.  Capture starts from the page, POST /v1/start or --autostart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&autostart, "autostart", false, "Start capturing immediately")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	// Start-up: everything here is fatal.
	enrollment, err := loadEnrollment(ctx, cfg, logger)
	if err != nil {
		return err
	}
	resolver, err := service.NewIdentityResolver(enrollment, cfg.Threshold)
	if err != nil {
		return fmt.Errorf("enrollment: %w", err)
	}

	alg, err := vision.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return err
	}
	classifier, err := vision.LoadClassifier(alg, cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	defer classifier.Close()

	detector, err := vision.NewCascadeDetector(cfg.CascadePath)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	defer detector.Close()

	if len(cfg.Authorized) == 0 {
		logger.Warn("no authorized identities configured; every face will be denied")
	}
	access := service.NewAccessControl(service.NewAccessPolicy(cfg.Authorized, cfg.Cooldown))

	m := metrics.New()
	hub := display.NewHub()
	m.WatchDisplay(hub.Drops, hub.Subscribers)

	pipe := pipeline.New(pipeline.Dependencies{
		Logger:     logger,
		Detector:   detector,
		Classifier: classifier,
		Resolver:   resolver,
		Access:     access,
		Recorder:   m,
	})

	grpcSrv := grpcapi.New(grpcapi.Dependencies{Logger: logger, Addr: cfg.GRPCAddr})

	runner := service.NewCaptureRunner(service.RunnerDependencies{
		Logger:    logger,
		Source:    vision.DeviceSource{Device: cfg.Camera},
		Processor: pipe,
		Sink:      hub,
		OnState: func(running bool) {
			m.SetCaptureRunning(running)
			grpcSrv.SetCaptureServing(running)
		},
	})

	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:  logger,
		Addr:    cfg.HTTPAddr,
		Display: hub,
		Runner:  runner,
		Access:  access,
		Metrics: m.Handler(),
		Exit:    cancel,
	})

	logger.Info("facegate ready",
		"version", Version,
		"algorithm", string(alg),
		"identities", resolver.Len(),
		"authorized", len(cfg.Authorized),
		"threshold", cfg.Threshold,
		"cooldown", cfg.Cooldown,
		"http", cfg.HTTPAddr,
		"grpc", cfg.GRPCAddr,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.Start(gctx) })
	g.Go(func() error { return grpcSrv.ListenAndServe(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		runner.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := runner.Wait(shutdownCtx); err != nil {
			logger.Warn("capture did not stop in time", "err", err)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	if autostart {
		if err := runner.Start(gctx); err != nil {
			logger.Warn("autostart failed", "err", err)
		}
	}

	return g.Wait()
}

// loadEnrollment reads the name -> label table from the configured store.
func loadEnrollment(ctx context.Context, cfg config.Config, logger *slog.Logger) (types.Enrollment, error) {
	var src store.EnrollmentStore
	switch cfg.EnrollmentStore {
	case "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		w := db.NewWorker(conn)
		defer w.Close()
		src = sqlite.NewIdentityStore(conn, w)
	default:
		src = file.NewEnrollmentFile(cfg.EnrollmentPath)
	}

	enrollment, err := src.Enrollment(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enrollment (%s): %w", cfg.EnrollmentStore, err)
	}
	logger.Debug("enrollment loaded", "store", cfg.EnrollmentStore, "identities", len(enrollment))
	return enrollment, nil
}
