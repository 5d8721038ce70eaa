package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docsearch/internal/config"
	"docsearch/internal/model"
)

// RabbitMQ publishes jobs to a durable queue whose rejected messages are dead-lettered
// to a second queue through the default exchange.
type RabbitMQ struct {
	conn     *amqp.Connection
	pubMu    sync.Mutex
	pub      *amqp.Channel
	queue    string
	prefetch int
	log      *slog.Logger
}

var _ Channel = (*RabbitMQ)(nil)

// NewRabbitMQ dials the broker and declares the work queue and its dead-letter queue.
func NewRabbitMQ(cfg config.RabbitMQConfig, log *slog.Logger) (*RabbitMQ, error) {
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, fmt.Errorf("rabbitmq url and queue are required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := declareQueues(ch, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	log.Info("rabbitmq_connected",
		"component", "messaging",
		"queue", cfg.Queue,
		"dead_letter_queue", cfg.DeadLetterQueue,
	)
	return &RabbitMQ{conn: conn, pub: ch, queue: cfg.Queue, prefetch: prefetch, log: log}, nil
}

func declareQueues(ch *amqp.Channel, cfg config.RabbitMQConfig) error {
	var args amqp.Table
	if cfg.DeadLetterQueue != "" {
		if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", cfg.DeadLetterQueue, err)
		}
		args = amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": cfg.DeadLetterQueue,
		}
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	return nil
}

// Publish sends a persistent JSON message. amqp channels are not safe for
// concurrent publishing, hence the mutex.
func (r *RabbitMQ) Publish(ctx context.Context, job model.ProcessingJob) error {
	body, err := Encode(job)
	if err != nil {
		return err
	}
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	err = r.pub.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish job %s: %w", job.DocumentID, err)
	}
	return nil
}

// Consume opens a dedicated amqp channel with manual acknowledgements.
func (r *RabbitMQ) Consume(ctx context.Context, h Handler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(r.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				if r.conn.IsClosed() {
					return ErrClosed
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			r.handle(ctx, d, h)
		}
	}
}

// handle acks on success; anything else is nacked without requeue and ends up in the dead-letter queue.
func (r *RabbitMQ) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	job, err := Decode(d.Body)
	if err == nil {
		err = h(ctx, job)
	}
	if err != nil {
		r.log.Error("job_rejected",
			"component", "messaging",
			"document_id", job.DocumentID,
			"delivery_tag", d.DeliveryTag,
			"redelivered", d.Redelivered,
			"error", err.Error(),
		)
		if nerr := d.Nack(false, false); nerr != nil {
			r.log.Error("job_nack_failed", "component", "messaging", "error", nerr.Error())
		}
		return
	}
	if aerr := d.Ack(false); aerr != nil {
		r.log.Error("job_ack_failed", "component", "messaging", "document_id", job.DocumentID, "error", aerr.Error())
	}
}

func (r *RabbitMQ) Close() error {
	if r.conn.IsClosed() {
		return nil
	}
	return r.conn.Close()
}
