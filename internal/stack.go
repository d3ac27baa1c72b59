package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/documents"
	"github.com/starford/ucdcanvas/internal/editor"
	"github.com/starford/ucdcanvas/internal/index"
	"github.com/starford/ucdcanvas/internal/metrics"
	"github.com/starford/ucdcanvas/internal/sse"
	"github.com/starford/ucdcanvas/internal/storage"
)

// Stack holds the long-lived components shared by the HTTP service and the
// command line tools.
type Stack struct {
	Backend  storage.Backend
	FS       *storage.FS // non-nil only for the file backend
	Index    *index.DB
	Metrics  *metrics.Metrics
	Docs     *documents.Store
	Broker   *sse.Broker
	Sessions *editor.Manager

	closers []func()
}

// Open builds the storage backend, index, document store and session
// manager described by cfg. The caller must Close the stack.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Stack, error) {
	s := &Stack{Metrics: metrics.New()}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	s.Index = db
	s.closers = append(s.closers, func() { db.Close() })

	if err := s.openBackend(ctx, cfg, logger); err != nil {
		s.Close()
		return nil, err
	}

	reg := blocks.Default()
	s.Docs = documents.New(s.Backend, reg,
		documents.WithIndex(db),
		documents.WithLogger(logger),
		documents.WithMetrics(s.Metrics),
	)
	s.Broker = sse.NewBroker(cfg.Editor.EventsThrottle)
	s.closers = append(s.closers, s.Broker.Close)
	s.Sessions = editor.NewManager(s.Docs, reg,
		editor.WithPublisher(s.Broker),
		editor.WithLogger(logger),
		editor.WithMetrics(s.Metrics),
		editor.WithIdleTimeout(cfg.Editor.SessionIdleTimeout),
	)
	return s, nil
}

func (s *Stack) openBackend(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	switch cfg.Storage.Backend {
	case BackendFile:
		if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		s.Backend, s.FS = fs, fs
	case BackendSQLite:
		s.Backend = s.Index
	case BackendNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("ucdcanvas"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		s.closers = append(s.closers, func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("nats drain failed", slog.String("error", err.Error()))
			}
		})
		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("init jetstream: %w", err)
		}
		kv, err := storage.OpenNATSKV(ctx, js, cfg.NATS.Bucket)
		if err != nil {
			return err
		}
		s.Backend = kv
	case BackendMemory:
		s.Backend = storage.NewMemory()
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return nil
}

// Sync brings the index up to date with the backend.
func (s *Stack) Sync(ctx context.Context, logger *slog.Logger) error {
	if s.Backend == storage.Backend(s.Index) {
		return nil
	}
	return index.Sync(ctx, s.Index, s.Backend, logger)
}

// Close releases everything Open acquired, in reverse order.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
