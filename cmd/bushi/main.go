// Command bushi drives commit/reference ingestion for the repositories
// named in its configuration document.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"bushi.sh/bushi/core/actor"
	"bushi.sh/bushi/core/bushilog"
	"bushi.sh/bushi/core/config"
	"bushi.sh/bushi/core/gitrefs"
	"bushi.sh/bushi/core/orchestrator"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "bushi",
		Usage: "incremental git commit/reference ingestion",
		Commands: []*cli.Command{
			syncCommand(),
			syncOneCommand(),
		},
	}

	logger := bushilog.New("bushi", log.InfoLevel)
	slog.SetDefault(logger)
	ctx := bushilog.IntoContext(context.Background(), logger)

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "sync every repository named in the configuration document",
		Action: runSync,
		Description: `
	Environment variables:
		BUSHI_CONFIG            path to the domain document (default: ./bushi.yaml)
		BUSHI_QUEUE_CAPACITY    store actor queue depth (default: 128)
		BUSHI_LOG_LEVEL         debug, info, warn, error (default: info)
		BUSHI_DB_BUSY_TIMEOUT   sqlite busy timeout (default: 5s)
	`,
	}
}

func syncOneCommand() *cli.Command {
	return &cli.Command{
		Name:   "sync-one",
		Usage:  "resync a single configured repository",
		Action: runSyncOne,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "path",
				Usage:    "canonicalized on-disk path of the repository to resync",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "ref",
				Usage: "full reference name to resync (repeatable); omit for all references",
			},
		},
	}
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	orch, logger, err := setup(ctx, cmd.Name)
	if err != nil {
		return err
	}
	defer orch.Close()

	failures := orch.SyncAll(ctx)
	for _, f := range failures {
		logger.Error("repository sync failed", "repo", f.Repo, "state", f.State.String(), "err", f.Err)
	}
	if len(failures) > 0 {
		os.Exit(len(failures))
	}
	return nil
}

func runSyncOne(ctx context.Context, cmd *cli.Command) error {
	orch, _, err := setup(ctx, cmd.Name)
	if err != nil {
		return err
	}
	defer orch.Close()

	path := cmd.String("path")
	refs := cmd.StringSlice("ref")
	if err := orch.SyncOne(ctx, path, refs); err != nil {
		return fmt.Errorf("sync-one %s: %w", path, err)
	}
	return nil
}

// setup loads configuration and tuning, opens the store, and returns a
// ready Orchestrator along with a logger sub-prefixed for subcommand.
func setup(ctx context.Context, subcommand string) (*orchestrator.Orchestrator, *slog.Logger, error) {
	logger := bushilog.FromContext(ctx)

	tuning, err := config.LoadTuning(ctx)
	if err != nil {
		return nil, logger, fmt.Errorf("loading tuning: %w", err)
	}
	logger = bushilog.SubLogger(logger, subcommand)
	if cl, ok := logger.Handler().(*log.Logger); ok {
		cl.SetLevel(bushilog.ParseLevel(tuning.LogLevel))
	}

	docPath := config.DocumentPath()
	doc, err := config.LoadDocument(docPath)
	if err != nil {
		return nil, logger, fmt.Errorf("loading %s: %w", docPath, err)
	}
	if err := doc.Canonicalize(); err != nil {
		return nil, logger, fmt.Errorf("canonicalizing %s: %w", docPath, err)
	}
	created, err := doc.InitMarks()
	if err != nil {
		return nil, logger, fmt.Errorf("initializing mark files: %w", err)
	}
	if created > 0 {
		logger.Info("created mark files", "count", created)
	}

	gitrefs.Configure(32 * 1024 * 1024)

	dbPath := filepath.Join(doc.Path, ".bushi.db")
	dbActor, err := actor.Open(dbPath, tuning.DbBusyTimeout, actor.WithQueueCapacity(tuning.QueueCapacity), actor.WithLogger(logger))
	if err != nil {
		return nil, logger, fmt.Errorf("opening store at %s: %w", dbPath, err)
	}

	orch := orchestrator.New(doc.Path, dbActor, doc.Repo, orchestrator.WithLogger(logger))
	return orch, logger, nil
}
