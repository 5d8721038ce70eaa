// Package worker runs the consumers that feed processing jobs to the document pipeline.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"docsearch/internal/messaging"
	"docsearch/internal/model"
	"docsearch/internal/service"
)

// Processor is the part of service.Processor the runner depends on.
type Processor interface {
	Process(ctx context.Context, job model.ProcessingJob) (service.Outcome, error)
}

const outcomeError = "error"

// Metrics holds the worker collectors.
type Metrics struct {
	jobsProcessed *prometheus.CounterVec
	jobDuration   prometheus.Histogram
}

// NewMetrics creates the worker collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		jobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsearch_jobs_processed_total",
				Help: "Total number of processing jobs handled, by outcome.",
			},
			[]string{"outcome"},
		),
		jobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docsearch_job_duration_seconds",
				Help:    "Time spent processing one document.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
	}
	for _, c := range []prometheus.Collector{m.jobsProcessed, m.jobDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Runner consumes jobs from a channel with a fixed number of concurrent consumers.
type Runner struct {
	channel     messaging.Channel
	processor   Processor
	concurrency int
	metrics     *Metrics
	tracer      trace.Tracer
	log         *slog.Logger
}

// NewRunner builds a Runner. A concurrency below one is raised to one.
func NewRunner(ch messaging.Channel, p Processor, concurrency int, metrics *Metrics, log *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		channel:     ch,
		processor:   p,
		concurrency: concurrency,
		metrics:     metrics,
		tracer:      otel.Tracer("docsearch/worker"),
		log:         log,
	}
}

// Run blocks until ctx is cancelled, the channel is closed, or a consumer fails.
// Cancellation is a clean shutdown and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("worker_started", "component", "worker", "concurrency", r.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.concurrency; i++ {
		g.Go(func() error {
			return r.channel.Consume(gctx, r.Handle)
		})
	}

	err := g.Wait()
	r.log.Info("worker_stopped", "component", "worker")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle processes one job. Jobs for unknown documents are dropped; any other
// processing error is returned so the channel can reject the delivery.
// A job that has been picked up runs to a terminal state even when ctx is cancelled.
func (r *Runner) Handle(ctx context.Context, job model.ProcessingJob) error {
	ctx, span := r.tracer.Start(context.WithoutCancel(ctx), "process_document",
		trace.WithAttributes(attribute.String("document.id", job.DocumentID)),
	)
	defer span.End()

	start := time.Now()
	outcome, err := r.processor.Process(ctx, job)
	elapsed := time.Since(start)
	r.metrics.jobDuration.Observe(elapsed.Seconds())

	switch {
	case errors.Is(err, service.ErrNotFound):
		r.metrics.jobsProcessed.WithLabelValues(string(service.OutcomeSkipped)).Inc()
		span.SetAttributes(attribute.String("job.outcome", string(service.OutcomeSkipped)))
		r.log.Warn("job_dropped",
			"component", "worker",
			"document_id", job.DocumentID,
			"reason", "document not found",
		)
		return nil
	case err != nil:
		r.metrics.jobsProcessed.WithLabelValues(outcomeError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	r.metrics.jobsProcessed.WithLabelValues(string(outcome)).Inc()
	span.SetAttributes(attribute.String("job.outcome", string(outcome)))
	r.log.Info("job_processed",
		"component", "worker",
		"document_id", job.DocumentID,
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}
