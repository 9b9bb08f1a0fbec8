package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/urfave/cli"

	"github.com/vlab-research/client-cursor-stream/postgres"
)

var version = "devel"

func main() {
	log.SetFlags(0)
	log.SetPrefix("cursordump> ")
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	defaults := defaultConfig()

	configFlag := cli.StringFlag{
		Name:   "config",
		Usage:  "path to a YAML file with default values for the other flags",
		EnvVar: "CURSORDUMP_CONFIG",
	}
	connFlag := cli.StringFlag{
		Name:   "postgres-conn",
		Usage:  "PostgreSQL connection string",
		Value:  defaults.ConnectionString,
		EnvVar: "CURSORDUMP_POSTGRES_CONN",
	}
	tableFlag := cli.StringFlag{
		Name:  "table-name",
		Usage: "table holding the records",
		Value: defaults.TableName,
	}
	batchSizeFlag := cli.IntFlag{
		Name:  "batch-size",
		Usage: "records fetched per page",
		Value: defaults.BatchSize,
	}
	bufferFlag := cli.IntFlag{
		Name:  "buffer",
		Usage: "records buffered ahead of the writer",
		Value: defaults.Buffer,
	}
	fromFlag := cli.Int64Flag{
		Name:  "from",
		Usage: "start after the record with this id",
	}
	limitFlag := cli.IntFlag{
		Name:  "limit",
		Usage: "stop after this many records, 0 for no limit",
	}
	debugFlag := cli.BoolFlag{
		Name:  "debug",
		Usage: "log every page fetched to stderr",
	}

	app := cli.NewApp()
	app.Name = "cursordump"
	app.Version = version
	app.Usage = "streams a records table as JSON lines on stdout"
	app.Flags = []cli.Flag{configFlag, connFlag, tableFlag, batchSizeFlag, bufferFlag, fromFlag, limitFlag, debugFlag}

	app.Action = func(c *cli.Context) error {
		cfg := defaults
		if path := c.String(configFlag.Name); path != "" {
			if err := readConfigFile(path, &cfg); err != nil {
				return err
			}
		}
		if c.IsSet(connFlag.Name) {
			cfg.ConnectionString = c.String(connFlag.Name)
		}
		if c.IsSet(tableFlag.Name) {
			cfg.TableName = c.String(tableFlag.Name)
		}
		if c.IsSet(batchSizeFlag.Name) {
			cfg.BatchSize = c.Int(batchSizeFlag.Name)
		}
		if c.IsSet(bufferFlag.Name) {
			cfg.Buffer = c.Int(bufferFlag.Name)
		}
		if c.IsSet(fromFlag.Name) {
			cfg.From = c.Int64(fromFlag.Name)
		}
		if c.IsSet(limitFlag.Name) {
			cfg.Limit = c.Int(limitFlag.Name)
		}
		if c.IsSet(debugFlag.Name) {
			cfg.Debug = c.Bool(debugFlag.Name)
		}
		if err := cfg.validate(); err != nil {
			return err
		}

		level := slog.LevelInfo
		if cfg.Debug {
			level = slog.LevelDebug
		}
		ll := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		source, err := postgres.Open(ctx, cfg.postgres())
		if err != nil {
			return err
		}
		defer source.Close()

		written, err := dump(ctx, ll, os.Stdout, source.Fetch(), cfg.From, cfg.Buffer, cfg.Limit)
		if err != nil {
			ll.ErrorContext(ctx, "dump failed", slog.Int("written", written), slog.Any("err", err))
			return err
		}
		ll.InfoContext(ctx, "dump complete", slog.Int("written", written), slog.String("table", source.TableName()))
		return nil
	}
	return app
}
