package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"netbuy-ranker/internal/classify"
	"netbuy-ranker/internal/config"
	"netbuy-ranker/internal/explorer"
	"netbuy-ranker/internal/ingestion"
	"netbuy-ranker/internal/notify"
	"netbuy-ranker/internal/orchestrator"
	"netbuy-ranker/internal/ranking"
	"netbuy-ranker/internal/storage"
	chstore "netbuy-ranker/internal/storage/clickhouse"
	"netbuy-ranker/internal/storage/filestore"
	"netbuy-ranker/internal/storage/memory"
	"netbuy-ranker/internal/storage/migrations"
	pgstore "netbuy-ranker/internal/storage/postgres"
	"netbuy-ranker/internal/storage/rediscache"
	"netbuy-ranker/internal/storage/sqlite"
)

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("backend") {
		cfg.StorageBackend = strings.ToLower(c.String("backend"))
	}
	if c.IsSet("start-block") {
		cfg.StartBlock = c.Int64("start-block")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = strings.ToLower(c.String("log-level"))
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = strings.ToLower(c.String("log-format"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so stdout stays clean for output.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = out
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// stores holds the persistence side of one process.
type stores struct {
	ledger    storage.LedgerStore
	snapshots storage.SnapshotStore
	mirrors   map[string]storage.SnapshotStore
	closers   []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores opens the configured primary backend and any configured mirrors.
// Mirrors that cannot be reached are skipped with a warning.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	s := &stores{mirrors: make(map[string]storage.SnapshotStore)}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		s.ledger = memory.NewLedgerStore()
		s.snapshots = memory.NewSnapshotStore()

	case config.BackendFile:
		ledger, err := filestore.OpenLedger(cfg.LedgerPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open ledger file: %w", err)
		}
		snaps, err := filestore.OpenSnapshots(cfg.RankingsPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open rankings file: %w", err)
		}
		s.ledger, s.snapshots = ledger, snaps

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { db.Close() })
		s.ledger = sqlite.NewLedgerStore(db)
		s.snapshots = sqlite.NewSnapshotStore(db)

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Strs("files", applied).Msg("applied postgres migrations")
		}
		s.ledger = pgstore.NewLedgerStore(pool)
		s.snapshots = pgstore.NewSnapshotStore(pool)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			logger.Warn().Err(err).Msg("clickhouse mirror disabled")
		} else {
			s.closers = append(s.closers, func() { conn.Close() })
			s.mirrors["clickhouse"] = chstore.NewSnapshotStore(conn)
		}
	}

	if cfg.RedisAddr != "" {
		cache, err := rediscache.NewSnapshotStore(ctx, rediscache.Options{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: "ranker:" + cfg.TokenAddress,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis mirror disabled")
		} else {
			s.closers = append(s.closers, func() { cache.Close() })
			s.mirrors["redis"] = cache
		}
	}

	return s, nil
}

// runtime is a fully wired ranking service.
type runtime struct {
	cfg        *config.Config
	logger     zerolog.Logger
	stores     *stores
	publishers notify.Multi
	service    *orchestrator.Service
	closers    []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.stores.Close()
}

type runtimeOptions struct {
	FullRescan bool
	Extra      []notify.Publisher // e.g. the websocket broadcaster
	Fetcher    ingestion.PageFetcher
}

// newRuntime wires fetcher, tracker, aggregator, stores and publishers into a Service.
func newRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts runtimeOptions) (*runtime, error) {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, stores: st}

	if cfg.NATSURL != "" {
		pub, err := notify.NewNATSPublisher(notify.NATSOptions{
			URL:     cfg.NATSURL,
			Subject: cfg.NATSSubject,
			Stream:  cfg.NATSStream,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("nats publisher disabled")
		} else {
			rt.closers = append(rt.closers, func() { pub.Close() })
			rt.publishers = append(rt.publishers, pub)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := notify.NewKafkaPublisher(notify.KafkaOptions{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("kafka publisher disabled")
		} else {
			rt.closers = append(rt.closers, func() { pub.Close() })
			rt.publishers = append(rt.publishers, pub)
		}
	}
	rt.publishers = append(rt.publishers, opts.Extra...)

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = explorer.NewClient(cfg.ExplorerBaseURL, cfg.TokenAddress, explorer.WithTimeout(cfg.FetchTimeout))
	}

	tracker := ingestion.NewTracker(ingestion.TrackerOptions{
		Fetcher:    fetcher,
		Ledger:     st.ledger,
		StartBlock: cfg.StartBlock,
		PageDelay:  cfg.PageDelay,
		MaxPages:   cfg.MaxPages,
		FullRescan: opts.FullRescan,
		Logger:     logger,
	})
	aggregator := ranking.NewAggregator(ranking.AggregatorOptions{
		Swaps:      classify.NewSwapSet(cfg.SwapAddresses...),
		StartBlock: cfg.StartBlock,
		Logger:     logger,
	})

	rt.service = orchestrator.New(orchestrator.Options{
		Tracker:      tracker,
		Aggregator:   aggregator,
		Ledger:       st.ledger,
		Snapshots:    st.snapshots,
		Mirrors:      st.mirrors,
		Publisher:    rt.publishers,
		TokenAddress: cfg.TokenAddress,
		TopN:         cfg.TopN,
		Logger:       logger,
	})

	logger.Debug().
		Str("backend", cfg.StorageBackend).
		Int("mirrors", len(st.mirrors)).
		Int("publishers", len(rt.publishers)).
		Int64("start_block", cfg.StartBlock).
		Dur("page_delay", cfg.PageDelay).
		Msg("runtime ready")

	return rt, nil
}

// stderr is swapped in tests.
var stderr io.Writer = os.Stderr

func setup(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg, stderr), nil
}

func shortDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
