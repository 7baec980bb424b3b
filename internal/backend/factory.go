package backend

import (
	"context"
	"errors"
	"fmt"

	"finboard/internal/amqp"
	"finboard/internal/log"
	"finboard/internal/memory"
	"finboard/internal/storage"
	"finboard/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		res, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		res, err = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachPublisher(res, config)
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	pool, err := postgres.Connect(ctx, config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
	}

	f.logger.Info("Initialized PostgreSQL backend")

	return &BackendResult{
		Backend: postgres.NewStore(pool),
		Cleanup: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory backend")

	return &BackendResult{
		Backend: memory.New(),
	}, nil
}

// attachPublisher connects the optional broker. A broker that cannot be
// reached leaves the backend usable without events.
func (f *DefaultFactory) attachPublisher(res *BackendResult, config Config) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	res.Publisher = client
	cleanup := res.Cleanup
	res.Cleanup = func() error {
		var errs []error
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close AMQP client: %w", err))
		}
		if cleanup != nil {
			if err := cleanup(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
