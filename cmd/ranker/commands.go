package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"netbuy-ranker/internal/config"
	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/notify"
	"netbuy-ranker/internal/orchestrator"
	"netbuy-ranker/internal/pricing"
	"netbuy-ranker/internal/reporting"
	"netbuy-ranker/internal/server"
	"netbuy-ranker/internal/storage"
	chstore "netbuy-ranker/internal/storage/clickhouse"
	"netbuy-ranker/internal/storage/migrations"
	pgstore "netbuy-ranker/internal/storage/postgres"
)

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output in JSON format"},
		&cli.BoolFlag{Name: "message", Usage: "Output the chat message instead of a table"},
		&cli.BoolFlag{Name: "csv", Usage: "Output the full ranking as CSV"},
		&cli.IntFlag{Name: "top", Usage: "Number of wallets to show (default TOP_N)"},
	}
}

func messageOptions(cfg *config.Config) reporting.MessageOptions {
	return reporting.MessageOptions{
		TokenSymbol:  cfg.TokenSymbol,
		TokenAddress: cfg.TokenAddress,
		BuyLink:      cfg.BuyLink,
		Disclaimer:   true,
	}
}

func topN(c *cli.Context, cfg *config.Config) int {
	if c.IsSet("top") {
		return c.Int("top")
	}
	return cfg.TopN
}

// printSnapshot renders snap according to the output flags.
func printSnapshot(c *cli.Context, cfg *config.Config, snap *domain.RankingSnapshot) error {
	n := topN(c, cfg)
	switch {
	case c.Bool("json"):
		out := *snap
		out.Rankings = snap.Top(n)
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case c.Bool("csv"):
		_, err := io.WriteString(stdout, reporting.RenderCSV(snap.Rankings))
		return err
	case c.Bool("message"):
		_, err := fmt.Fprintln(stdout, reporting.RenderRankingMessage(snap, n, messageOptions(cfg)))
		return err
	default:
		color.New(color.Bold).Fprintf(stdout, "Net purchase ranking since block %d (updated %s, %d wallets, ledger %d)\n",
			snap.StartBlock, snap.LastUpdated.Format(time.RFC3339), len(snap.Rankings), snap.LedgerSize)
		reporting.RenderRankingTable(stdout, snap.Top(n))
		return nil
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Ingest new transfers once, recompute and print the ranking",
		Flags: append(outputFlags(),
			&cli.BoolFlag{
				Name:  "full-rescan",
				Usage: "Walk past known transfers down to the start block (after lowering START_BLOCK)",
			},
		),
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{FullRescan: c.Bool("full-rescan")})
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.service.RunIngestionAndRank(ctx)
			if err != nil {
				return err
			}

			logger.Info().
				Int("new_records", res.Ingest.Inserted).
				Int("pages", res.Ingest.Pages).
				Str("stop", string(res.Ingest.Stop)).
				Str("took", shortDuration(res.Duration)).
				Msg("run complete")

			return printSnapshot(c, cfg, res.Snapshot)
		},
	}
}

func rankingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "rankings",
		Usage: "Print the last saved ranking without fetching",
		Flags: outputFlags(),
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}

			st, err := openStores(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := st.snapshots.Latest(c.Context)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no ranking saved yet; run `ranker run` first")
			}
			if err != nil {
				return err
			}
			return printSnapshot(c, cfg, snap)
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List saved snapshots, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "Maximum snapshots to list"},
			&cli.StringFlag{Name: "from", Usage: "Read from a mirror (clickhouse, redis) instead of the primary store"},
			&cli.StringFlag{Name: "wallet", Usage: "With --from clickhouse: show one wallet's position over time"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}

			st, err := openStores(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			source := st.snapshots
			if name := c.String("from"); name != "" {
				mirror, ok := st.mirrors[name]
				if !ok {
					return fmt.Errorf("mirror %q is not configured", name)
				}
				source = mirror
			}

			if wallet := c.String("wallet"); wallet != "" {
				ch, ok := source.(*chstore.SnapshotStore)
				if !ok {
					return fmt.Errorf("--wallet requires --from clickhouse")
				}
				points, err := ch.WalletHistory(c.Context, cfg.TokenAddress, wallet)
				if err != nil {
					return err
				}
				for _, p := range points {
					fmt.Fprintf(stdout, "%s  #%-4d %.2f\n", p.LastUpdated.Format(time.RFC3339), p.Rank, p.NetPurchase)
				}
				return nil
			}

			history, err := source.History(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			for _, snap := range history {
				fmt.Fprintf(stdout, "%s  %s  start=%d ledger=%d new=%d wallets=%d\n",
					snap.LastUpdated.Format(time.RFC3339), snap.ID, snap.StartBlock,
					snap.LedgerSize, snap.NewRecords, len(snap.Rankings))
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and websocket feed, optionally refreshing on a schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (overrides SERVER_ADDR)"},
			&cli.StringFlag{Name: "schedule", Usage: "Cron schedule for refresh runs (overrides REFRESH_SCHEDULE)"},
			&cli.BoolFlag{Name: "run-on-start", Usage: "Run one refresh before serving"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			if c.IsSet("addr") {
				cfg.ServerAddr = c.String("addr")
			}
			if c.IsSet("schedule") {
				cfg.RefreshSchedule = c.String("schedule")
			}

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			var rt *runtime
			broadcaster := server.NewBroadcaster(server.BroadcasterOptions{
				Latest: func(ctx context.Context) (*domain.RankingSnapshot, error) {
					return rt.service.LatestSnapshot(ctx)
				},
				Logger: logger,
			})

			rt, err = newRuntime(ctx, cfg, logger, runtimeOptions{Extra: []notify.Publisher{broadcaster}})
			if err != nil {
				return err
			}
			defer rt.Close()

			if c.Bool("run-on-start") {
				refresh(ctx, rt.service, logger)
			}

			if cfg.RefreshSchedule != "" {
				sched := cron.New()
				if _, err := sched.AddFunc(cfg.RefreshSchedule, func() { refresh(ctx, rt.service, logger) }); err != nil {
					return fmt.Errorf("schedule %q: %w", cfg.RefreshSchedule, err)
				}
				sched.Start()
				defer func() { <-sched.Stop().Done() }()
				logger.Info().Str("schedule", cfg.RefreshSchedule).Msg("scheduled refresh enabled")
			}

			srv := server.New(server.Options{
				Addr:        cfg.ServerAddr,
				Ranker:      rt.service,
				Quoter:      newPriceClient(cfg),
				Broadcaster: broadcaster,
				Cooldown:    cfg.Cooldown,
				TopN:        cfg.TopN,
				Message:     messageOptions(cfg),
				Logger:      logger,

				TrustedProxies: cfg.TrustedProxies,
			})
			return srv.Run(ctx)
		},
	}
}

// refresh runs one scheduled pass. Failures are logged; the next tick retries.
func refresh(ctx context.Context, svc *orchestrator.Service, logger zerolog.Logger) {
	res, err := svc.RunIngestionAndRank(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error().Err(err).Msg("scheduled refresh failed")
		}
		return
	}
	logger.Info().
		Int("new_records", res.Ingest.Inserted).
		Bool("shared", res.Shared).
		Msg("scheduled refresh complete")
}

func newPriceClient(cfg *config.Config) *pricing.Client {
	return pricing.NewClient(pricing.Options{
		URL:           cfg.PriceAPIURL,
		TokenAddress:  cfg.TokenAddress,
		NativeAddress: cfg.NativeAddress,
		TotalSupply:   cfg.TotalSupply,
	})
}

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:  "price",
		Usage: "Print the token's spot price and market cap",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output in JSON format"},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := setup(c)
			if err != nil {
				return err
			}

			q, err := newPriceClient(cfg).Quote(c.Context)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(q)
			}
			_, err = io.WriteString(stdout, reporting.RenderQuote(q, messageOptions(cfg)))
			return err
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply embedded PostgreSQL and ClickHouse migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-dsn", EnvVars: []string{"POSTGRES_DSN"}, Usage: "PostgreSQL connection string"},
			&cli.StringFlag{Name: "clickhouse-dsn", EnvVars: []string{"CLICKHOUSE_DSN"}, Usage: "ClickHouse connection string"},
		},
		Action: func(c *cli.Context) error {
			pgDSN, chDSN := c.String("postgres-dsn"), c.String("clickhouse-dsn")
			if pgDSN == "" && chDSN == "" {
				return fmt.Errorf("--postgres-dsn or --clickhouse-dsn is required")
			}

			if pgDSN != "" {
				pool, err := pgstore.NewPool(c.Context, pgDSN)
				if err != nil {
					return err
				}
				defer pool.Close()

				applied, err := migrations.RunPostgresMigrations(c.Context, pool)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "postgres: %d migration(s) applied\n", len(applied))
				for _, f := range applied {
					fmt.Fprintf(stdout, "  %s\n", f)
				}
			}

			if chDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(c.Context, chDSN)
				if err != nil {
					return err
				}
				conn.Close()
				fmt.Fprintln(stdout, "clickhouse: schema up to date")
			}
			return nil
		},
	}
}
