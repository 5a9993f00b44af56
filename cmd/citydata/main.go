package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("citydata failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "citydata",
		Usage:   "Batched download of NYC 311 service requests and daily weather",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (default: ./configs/config.yaml or ./config.yaml)",
			},
			&cli.StringFlag{
				Name:  "start",
				Usage: "First date of the range (YYYY-MM-DD)",
			},
			&cli.StringFlag{
				Name:  "end",
				Usage: "Last date of the range (YYYY-MM-DD)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "log-pretty",
				Usage: "Human-readable console logs",
			},
			&cli.StringFlag{
				Name:  "cache",
				Usage: "Response cache: none, memory, redis",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address, e.g. :9090",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Disable the progress bar",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "requests",
				Usage:  "Fetch 311 service requests window by window",
				Action: withDeps(runRequests),
				Flags:  requestsFlags(),
			},
			{
				Name:   "weather",
				Usage:  "Fetch daily weather for the whole range",
				Action: withDeps(runWeather),
				Flags:  weatherFlags(),
			},
			{
				Name:   "all",
				Usage:  "Fetch 311 service requests, then weather",
				Action: withDeps(runAll),
				Flags:  append(requestsFlags(), weatherFlags()...),
			},
		},
	}
}

func requestsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "batch-days",
			Usage: "Days per window",
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Rows per page request",
		},
		&cli.IntFlag{
			Name:  "max-results",
			Usage: "Stop each window after this many rows (0 = no limit)",
		},
		&cli.BoolFlag{
			Name:  "write-partial",
			Usage: "Write the rows of windows that failed mid-way",
		},
		&cli.StringFlag{
			Name:  "requests-dir",
			Usage: "Output directory for 311 artifacts",
		},
	}
}

func weatherFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "overwrite",
			Usage: "Existing weather artifact: skip, overwrite, ask",
		},
		&cli.StringFlag{
			Name:  "weather-dir",
			Usage: "Output directory for weather artifacts",
		},
	}
}

// withDeps loads configuration, builds shared dependencies and cancels
// the run context on SIGINT or SIGTERM.
func withDeps(action func(ctx context.Context, d *deps) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(c.Context)
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		go func() {
			select {
			case <-sigCh:
				fmt.Fprintln(os.Stderr, "\nInterrupted. Finishing current request...")
				cancel()
			case <-ctx.Done():
			}
		}()

		d, err := newDeps(ctx, cfg, depsOptions{
			progress: !c.Bool("no-progress"),
			stdin:    c.App.Reader,
			stderr:   c.App.ErrWriter,
		})
		if err != nil {
			return err
		}
		defer d.Close()

		return action(ctx, d)
	}
}
