package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"docsearch/internal/config"
	"docsearch/internal/database"
	"docsearch/internal/database/migration"
	"docsearch/internal/embedding"
	"docsearch/internal/messaging"
	"docsearch/internal/storage"
)

// openDatabase connects to Postgres and runs the schema migration when DB_AUTO_MIGRATE is set.
func openDatabase(ctx context.Context, c *config.AppConfig, log *slog.Logger, opts database.Options) (*sql.DB, error) {
	db, err := database.NewPostgres(ctx, c.Database, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if c.Database.AutoMigrate {
		if err := migration.EnsureMigrated(ctx, db, log, c.Database.Host); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func newStorage(ctx context.Context, c *config.AppConfig) (storage.Storage, error) {
	switch c.Storage.Driver {
	case "", "minio":
		return storage.NewMinIO(c.MinIO)
	case "gcs":
		return storage.NewGCS(ctx, c.Storage.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
}

func newChannel(c *config.AppConfig, log *slog.Logger) (messaging.Channel, error) {
	switch c.Messaging.Driver {
	case "", "rabbitmq":
		return messaging.NewRabbitMQ(c.RabbitMQ, log)
	case "memory":
		return messaging.NewMemory(c.Messaging.Buffer, log), nil
	default:
		return nil, fmt.Errorf("unknown messaging driver %q", c.Messaging.Driver)
	}
}

// newEmbedder returns the configured generator and a function releasing its resources.
func newEmbedder(ctx context.Context, c *config.AppConfig) (embedding.Generator, func() error, error) {
	switch c.Embedding.Provider {
	case "", "openai":
		g, err := embedding.NewOpenAI(c.Embedding)
		if err != nil {
			return nil, nil, err
		}
		return g, func() error { return nil }, nil
	case "vertex":
		g, err := embedding.NewVertex(ctx, c.Embedding)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
}
