// Command ranker ingests token transfers and ranks wallets by net purchase.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ranker",
		Usage: "Net purchase ranking for a single token",
		Description: `Walks the block explorer's transfer history newest-first, keeps a durable
ledger of transfers keyed by transaction hash and ranks wallets by swap buys minus sells.

Configuration comes from the environment (and .env); global flags override it.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			runCommand(),
			rankingsCommand(),
			historyCommand(),
			serveCommand(),
			priceCommand(),
			migrateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Storage backend: file, sqlite, postgres, memory (overrides STORAGE_BACKEND)",
			},
			&cli.Int64Flag{
				Name:  "start-block",
				Usage: "Lower block bound, exclusive (overrides START_BLOCK)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn, error (overrides LOG_LEVEL)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "console or json (overrides LOG_FORMAT)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("no-color") {
				color.NoColor = true
			}
			return nil
		},
	}
}
