package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docsearch/docs"
	"docsearch/internal/database"
	"docsearch/internal/extractor"
	handlers "docsearch/internal/http/handler"
	"docsearch/internal/http/middleware"
	"docsearch/internal/model"
	"docsearch/internal/otel"
	"docsearch/internal/repository/postgres"
	"docsearch/internal/service"
	"docsearch/internal/worker"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API",
	Long: `Serve the upload, status, download and search endpoints.

With WORKER_IN_PROCESS=true the processing consumers run in the same process,
which is required for the in-memory messaging driver.`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

// newRegistry returns a registry carrying the Go runtime and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newApp builds the Fiber app with the global middleware chain and the operational routes.
func newApp(reg *prometheus.Registry) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// multipart overhead on top of the largest accepted file
		BodyLimit: int(model.MaxFileSizeBytes) + 1<<20,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	return app, nil
}

func runAPI(cmd *cobra.Command, args []string) error {
	if cfg.Messaging.Driver == "memory" && !cfg.Worker.InProcess {
		return errors.New("the memory messaging driver requires WORKER_IN_PROCESS=true")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "api", log)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	var consumers int
	if cfg.Worker.InProcess {
		consumers = cfg.Worker.Concurrency
	}
	db, err := openDatabase(ctx, cfg, log, database.Options{Component: "api", Consumers: consumers})
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

	repo := postgres.NewDocumentPostgres(db)
	reg := newRegistry()

	app, err := newApp(reg)
	if err != nil {
		return err
	}
	handlers.RegisterRoutes(app, db, handlers.Services{
		Upload: service.NewUploadService(store, repo, channel, log),
		Query:  service.NewQueryService(repo, store),
		Search: service.NewSearchService(repo, emb),
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Worker.InProcess {
		metrics, err := worker.NewMetrics(reg)
		if err != nil {
			return fmt.Errorf("failed to register worker metrics: %w", err)
		}
		proc := service.NewProcessor(repo, store, extractor.NewPDF(model.MaxFileSizeBytes), emb, log)
		runner := worker.NewRunner(channel, proc, cfg.Worker.Concurrency, metrics, log)
		g.Go(func() error { return runner.Run(gctx) })
	}

	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("http_server_started", "component", "api", "addr", addr)
		return app.Listen(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("http_server_stopping", "component", "api")
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
