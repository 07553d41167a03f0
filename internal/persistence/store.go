// Package persistence selects the repository backend once at startup.
package persistence

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/observability"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/persistence/memory"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/persistence/postgres"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/persistence/sqlite"
)

// Kind identifies a repository backend.
type Kind string

const (
	KindMemory   Kind = memory.Backend
	KindSQLite   Kind = sqlite.Backend
	KindPostgres Kind = postgres.Backend
)

// Config describes the store the service should try to use.
type Config struct {
	DatabaseURL    string
	ConnectTimeout time.Duration
	// Fallback serves from the in-memory table when the store cannot be reached.
	Fallback bool
	// ParticipationEvents records outbox rows on Postgres.
	ParticipationEvents bool
}

// Store is the selected repository plus the resources backing it.
type Store struct {
	Repository domain.Repository
	// Pool is set when the Postgres backend was selected.
	Pool   *pgxpool.Pool
	closer func()
}

// Close releases connections held by the store.
func (s *Store) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// Option configures optional behaviour for Open.
type Option func(*options)

type options struct {
	logger *log.Logger
	seed   []domain.SeedActivity
}

// WithLogger overrides the logger used to report backend selection.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSeed replaces the seed activities loaded into an empty store.
func WithSeed(seed []domain.SeedActivity) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// Open probes the configured store, applies the schema and seed, and returns
// the repository to use for the life of the process. When the store is
// unreachable and cfg.Fallback is set it returns the in-memory repository.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	o := options{
		logger: log.New(log.Writer(), "[persistence] ", log.LstdFlags),
		seed:   domain.SeedActivities(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := openConfigured(ctx, cfg, o.seed)
	if err != nil {
		if !cfg.Fallback {
			return nil, err
		}
		o.logger.Printf("persistent store unavailable, serving from in-memory table: %v", err)
		observability.RecordStoreFallback()
		store = &Store{Repository: memory.NewRepositoryWith(o.seed)}
	}

	o.logger.Printf("using %s repository", store.Repository.Backend())
	observability.RecordBackend(store.Repository.Backend())
	return store, nil
}

func openConfigured(ctx context.Context, cfg Config, seed []domain.SeedActivity) (*Store, error) {
	kind, target, err := ParseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if kind == KindMemory {
		return &Store{Repository: memory.NewRepositoryWith(seed)}, nil
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	switch kind {
	case KindPostgres:
		pool, err := postgres.Open(ctx, target)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool, seed); err != nil {
			pool.Close()
			return nil, err
		}
		var repoOpts []postgres.Option
		if cfg.ParticipationEvents {
			repoOpts = append(repoOpts, postgres.WithParticipationEvents())
		}
		return &Store{
			Repository: postgres.NewRepository(pool, repoOpts...),
			Pool:       pool,
			closer:     pool.Close,
		}, nil
	default:
		db, err := sqlite.Open(ctx, target)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(ctx, db, seed); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{
			Repository: sqlite.NewRepository(db),
			closer:     func() { _ = db.Close() },
		}, nil
	}
}

// ParseURL maps DATABASE_URL to a backend and its connection target.
//
//	postgres://... or postgresql://...  -> Postgres, URL unchanged
//	sqlite:///relative.db               -> SQLite file relative.db
//	sqlite:////abs/path.db              -> SQLite file /abs/path.db
//	sqlite:// or sqlite:///:memory:     -> SQLite in-memory database
//	memory                              -> in-memory table
func ParseURL(raw string) (Kind, string, error) {
	url := strings.TrimSpace(raw)
	switch {
	case url == "" || url == "memory" || url == "memory://":
		return KindMemory, "", nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return KindPostgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "/")
		if path == "" {
			path = sqlite.MemoryPath
		}
		return KindSQLite, path, nil
	default:
		return "", "", fmt.Errorf("%w: unsupported DATABASE_URL %q", domain.ErrStoreUnavailable, url)
	}
}
