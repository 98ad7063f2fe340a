// Command pmm-dizquetv relays Plex-Meta-Manager collection webhooks into
// dizqueTV channel updates.
//
//	run       Serve the webhook and process events in the background
//	validate  Load the config, print schema warnings, exit non-zero on hard errors
//	sync      One-shot synchronization of a single collection from the CLI
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/channelsync"
	"github.com/tssgery/pmm-dizquetv/internal/config"
	"github.com/tssgery/pmm-dizquetv/internal/directory"
	"github.com/tssgery/pmm-dizquetv/internal/dizquetv"
	"github.com/tssgery/pmm-dizquetv/internal/health"
	"github.com/tssgery/pmm-dizquetv/internal/journal"
	"github.com/tssgery/pmm-dizquetv/internal/lineup"
	"github.com/tssgery/pmm-dizquetv/internal/logging"
	"github.com/tssgery/pmm-dizquetv/internal/metrics"
	"github.com/tssgery/pmm-dizquetv/internal/notify"
	"github.com/tssgery/pmm-dizquetv/internal/plex"
	"github.com/tssgery/pmm-dizquetv/internal/policy"
	"github.com/tssgery/pmm-dizquetv/internal/relay"
)

func main() {
	_ = godotenv.Load()

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runConfig := runCmd.String("config", "", "Config path (default: PMM_DIZQUETV_CONFIG or "+config.DefaultPath+")")
	runSkipHealth := runCmd.Bool("skip-health", false, "Skip startup reachability checks against Plex and dizqueTV")

	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateConfig := validateCmd.String("config", "", "Config path (default: PMM_DIZQUETV_CONFIG or "+config.DefaultPath+")")

	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	syncConfig := syncCmd.String("config", "", "Config path (default: PMM_DIZQUETV_CONFIG or "+config.DefaultPath+")")
	syncLibrary := syncCmd.String("library", "", "Plex library section name")
	syncCollection := syncCmd.String("collection", "", "Collection title")
	syncDeleted := syncCmd.Bool("deleted", false, "Treat as a deletion event")
	syncPoster := syncCmd.String("poster", "", "Poster URL to set on the channel")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <run|validate|sync> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  run       Serve the PMM webhook\n")
		fmt.Fprintf(os.Stderr, "  validate  Check the config file and print warnings\n")
		fmt.Fprintf(os.Stderr, "  sync      One-shot synchronization of one collection\n")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		_ = runCmd.Parse(os.Args[2:])
		os.Exit(runMain(configPath(*runConfig), *runSkipHealth))
	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		os.Exit(validateMain(configPath(*validateConfig)))
	case "sync":
		_ = syncCmd.Parse(os.Args[2:])
		if *syncCollection == "" || *syncLibrary == "" {
			fmt.Fprintln(os.Stderr, "sync requires -library and -collection")
			os.Exit(2)
		}
		os.Exit(syncMain(configPath(*syncConfig), *syncLibrary, *syncCollection, *syncDeleted, *syncPoster))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return config.Path()
}

func newLogger(cfg *config.Config) *zap.Logger {
	level := cfg.Log.Level
	if cfg.DizqueTV.Debug && level == "" {
		level = "debug"
	}
	return logging.New(logging.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Stdout:     cfg.Log.Stdout,
	})
}

func runMain(path string, skipHealth bool) int {
	cfg, warns, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	log := newLogger(cfg)
	defer log.Sync()
	for _, w := range warns {
		log.Warn("config schema warning", zap.String("detail", w))
	}
	log.Info("configuration loaded",
		zap.String("path", path),
		zap.String("plex", cfg.Plex.URL),
		zap.String("dizquetv", cfg.DizqueTV.URL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !skipHealth {
		checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		if err := health.CheckPlex(checkCtx, cfg.Plex.URL, cfg.Plex.Token); err != nil {
			log.Warn("plex not reachable at startup", zap.Error(err))
		}
		if err := health.CheckDizqueTV(checkCtx, cfg.DizqueTV.URL); err != nil {
			log.Warn("dizquetv not reachable at startup", zap.Error(err))
		}
		cancel()
	}

	var jnl *journal.Journal
	if cfg.Server.JournalPath != "" {
		jnl, err = journal.Open(cfg.Server.JournalPath)
		if err != nil {
			log.Error("journal disabled", zap.Error(err))
			jnl = nil
		} else {
			defer jnl.Close()
		}
	}

	srv := &relay.Server{
		Addr:       cfg.Server.Addr,
		ConfigPath: path,
		Log:        log,
		Metrics:    metrics.New(),
		Journal:    jnl,
		Workers:    cfg.Server.Workers,
		QueueSize:  cfg.Server.QueueSize,
	}
	if err := srv.Run(ctx); err != nil {
		log.Error("webhook server failed", zap.Error(err))
		return 1
	}
	return 0
}

func validateMain(path string) int {
	cfg, warns, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	for _, w := range warns {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Printf("config OK: plex=%s dizquetv=%s libraries=%d\n",
		cfg.Plex.URL, cfg.DizqueTV.URL, len(cfg.Libraries))
	return 0
}

// syncMain runs the same code path as a webhook event, once, from the CLI.
func syncMain(path, library, collection string, deleted bool, poster string) int {
	cfg, warns, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	log := newLogger(cfg)
	defer log.Sync()
	for _, w := range warns {
		log.Warn("config schema warning", zap.String("detail", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pol := policy.NewResolver(cfg, log).Resolve(library, collection)
	dtv := dizquetv.NewClient(cfg.DizqueTV.URL, log)
	syncer := channelsync.New(
		directory.New(dtv, log),
		dtv,
		lineup.NewBuilder(plex.NewClient(cfg.Plex.URL, cfg.Plex.Token, log), log),
		log,
	)
	ev := channelsync.Event{
		ID:         uuid.NewString(),
		Library:    library,
		Collection: collection,
		Deleted:    deleted,
		PosterURL:  poster,
	}
	outcome, err := syncer.Sync(ctx, ev, pol)
	if err != nil {
		log.Error("synchronization aborted", zap.Error(err))
		notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sinkFor(cfg, log).RunSignal(notifyCtx,
			fmt.Sprintf("Synchronization failed for %q in %q: %v", collection, library, err))
		return 1
	}
	notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sinkFor(cfg, log).Notify(notifyCtx, *outcome)
	fmt.Printf("%s: channel %q (number %d), %d programs, %d minutes\n",
		outcome.Operation, outcome.ChannelName, outcome.ChannelNumber,
		outcome.ProgramCount, outcome.TotalMinutes)
	return 0
}

// sinkFor returns the Discord sink when a webhook URL is configured,
// otherwise a no-op.
func sinkFor(cfg *config.Config, log *zap.Logger) notify.Sink {
	dc := cfg.DizqueTV.Discord
	if dc.URL == "" {
		return notify.Nop{}
	}
	return notify.NewDiscord(dc.URL, dc.Username, dc.Avatar, log)
}
