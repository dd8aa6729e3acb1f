package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/api"
	"github.com/JakeFAU/site-screenshot-crawler/internal/app"
	"github.com/JakeFAU/site-screenshot-crawler/internal/dispatcher"
	"github.com/JakeFAU/site-screenshot-crawler/internal/id/uuid"
	queuememory "github.com/JakeFAU/site-screenshot-crawler/internal/queue/memory"
	"github.com/JakeFAU/site-screenshot-crawler/internal/storage/memory"
	"github.com/JakeFAU/site-screenshot-crawler/internal/worker"
)

// newServeCmd creates the 'serve' subcommand, which hosts the HTTP API and
// the worker pool that executes queued capture jobs.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the capture API and job workers",
		Long: `Serves the HTTP API. Submitted jobs are persisted in memory, queued on a
bounded queue sized by worker.queue_depth and executed by worker.count
workers. SIGINT or SIGTERM drains the server and stops workers after their
current run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if port == 0 {
				port = listenPort(appInstance.Config().Server.Port)
			}
			return serve(cmd.Context(), appInstance, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (defaults to $PORT, then server.port)")
	return cmd
}

// listenPort prefers the PORT variable set by container platforms.
func listenPort(configured int) int {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	return configured
}

// service is the job pipeline behind the HTTP API.
type service struct {
	handler  http.Handler
	dispatch *dispatcher.Dispatcher
	queue    *queuememory.Queue
}

func newService(a *app.App) *service {
	cfg := a.Config()
	logger := a.Logger()

	jobStore := memory.NewJobStore()
	queue := queuememory.NewQueue(cfg.Worker.QueueDepth)
	registry := dispatcher.NewRegistry()

	workerOpts := []worker.Option{worker.WithCanceller(registry)}
	if pub := a.Publisher(); pub != nil {
		workerOpts = append(workerOpts, worker.WithPublisher(pub))
	}
	if rec := a.Recorder(); rec != nil {
		workerOpts = append(workerOpts, worker.WithRecorder(rec))
	}
	workerCfg := worker.Config{Topic: cfg.PubSub.TopicName}

	workers := make([]*worker.Worker, 0, cfg.Worker.Count)
	for i := 0; i < cfg.Worker.Count; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			a.Runner(),
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
			workerOpts...,
		))
	}
	dispatch := dispatcher.New(queue, workers, registry)

	deps := api.Dependencies{
		JobStore: jobStore,
		Jobs:     dispatch,
		IDs:      uuid.New(),
		Domains:  a.Domains(),
		Screens:  a.Artifacts(),
		Ready:    a.Ready,
	}
	if sink := a.Audit(); sink != nil {
		deps.Logs = sink
	}
	apiServer := api.NewServer(deps, cfg, logger.Named("api"))

	return &service{handler: apiServer.Handler(), dispatch: dispatch, queue: queue}
}

func serve(ctx context.Context, a *app.App, port int) error {
	cfg := a.Config()
	logger := a.Logger()
	svc := newService(a)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           svc.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		logger.Info("dispatcher started", zap.Int("workers", cfg.Worker.Count))
		svc.dispatch.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	svc.queue.Close()
	select {
	case <-dispatched:
	case <-shutdownCtx.Done():
		logger.Warn("workers still running at shutdown deadline")
	}
	logger.Info("shutdown complete")

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}
