package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docsearch/internal/database"
	"docsearch/internal/extractor"
	"docsearch/internal/model"
	"docsearch/internal/otel"
	"docsearch/internal/repository/postgres"
	"docsearch/internal/service"
	"docsearch/internal/worker"
)

var (
	workerMetricsAddr string
	workerConcurrency int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume processing jobs",
	Long: `Consume jobs from the broker and drive each document through extraction and
embedding. Metrics are served on --metrics-addr.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", ":9091", "address for the /metrics endpoint (empty disables it)")
	workerCmd.Flags().IntVarP(&workerConcurrency, "concurrency", "c", 0, "number of consumers (default from WORKER_CONCURRENCY)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	if cfg.Messaging.Driver == "memory" {
		return errors.New("the memory messaging driver only works with 'docsearch api' and WORKER_IN_PROCESS=true")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "worker", log)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	concurrency := cfg.Worker.Concurrency
	if workerConcurrency > 0 {
		concurrency = workerConcurrency
	}
	db, err := openDatabase(ctx, cfg, log, database.Options{Component: "worker", Consumers: concurrency})
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := newStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	channel, err := newChannel(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer channel.Close()

	emb, closeEmb, err := newEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding: %w", err)
	}
	defer closeEmb()

	reg := newRegistry()
	metrics, err := worker.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register worker metrics: %w", err)
	}

	repo := postgres.NewDocumentPostgres(db)
	proc := service.NewProcessor(repo, store, extractor.NewPDF(model.MaxFileSizeBytes), emb, log)
	runner := worker.NewRunner(channel, proc, concurrency, metrics, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })

	if workerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: workerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
