package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/contentpipe/internal/budget"
	"git.home.luguber.info/inful/contentpipe/internal/config"
	"git.home.luguber.info/inful/contentpipe/internal/daemon"
	"git.home.luguber.info/inful/contentpipe/internal/skills"
	"git.home.luguber.info/inful/contentpipe/internal/store"
)

var CLI struct {
	Verbose bool `short:"v" help:"Enable verbose logging"`

	Run struct{} `cmd:"" help:"Run the pipeline daemon"`

	Init struct {
		Force bool `help:"Overwrite existing .env and sources.yaml"`
	} `cmd:"" help:"Write starter .env, sources.yaml, and seed skills"`

	Scout struct{} `cmd:"" help:"Run one discovery pass and exit"`

	Status struct{} `cmd:"" help:"Print store counts and current operating mode"`
}

func main() {
	kctx := kong.Parse(&CLI)

	level := slog.LevelInfo
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var err error
	switch kctx.Command() {
	case "run":
		err = runDaemon(logger)
	case "init":
		err = runInit(logger)
	case "scout":
		err = runScout(logger)
	case "status":
		err = runStatus(logger)
	default:
		err = fmt.Errorf("unknown command %q", kctx.Command())
	}
	if err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func runDaemon(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.MediaTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

func runInit(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := config.WriteStarterEnv(".env", CLI.Init.Force); err != nil {
		return err
	}
	logger.Info("Wrote .env")
	if err := config.WriteStarterSources(cfg.SourcesFile, CLI.Init.Force); err != nil {
		return err
	}
	logger.Info("Wrote sources file", "path", cfg.SourcesFile)

	if err := os.MkdirAll(cfg.SkillsDir, 0o755); err != nil {
		return fmt.Errorf("create skills directory: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	library := skills.NewLibrary(cfg.SkillsDir, st, logger)
	if err := library.Load(ctx); err != nil {
		return err
	}
	seeded, err := library.SeedDefaults(ctx)
	if err != nil {
		return err
	}
	logger.Info("Skill library ready", "seeded", seeded, "dir", cfg.SkillsDir)
	return nil
}

func runScout(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := d.TriggerScout(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("new discoveries: %d (sources active %d, skipped %d)\n",
		summary.NewDiscoveries, summary.ActiveSources, len(summary.SkippedSources))
	for name, stats := range summary.PerSource {
		fmt.Printf("  %-24s fetched %3d  new %3d  dup %3d  %s\n",
			name, stats.Fetched, stats.New, stats.Duplicates, stats.Error)
	}
	return nil
}

func runStatus(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	discoveries, err := st.CountDiscoveriesByStatus(ctx)
	if err != nil {
		return err
	}
	creations, err := st.CountCreationsByStatus(ctx)
	if err != nil {
		return err
	}

	mode, err := budget.New(st, cfg.DailyCostLimitUSD, nil, logger).ModeFor(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("mode: %s\n", mode)
	fmt.Println("discoveries:")
	printCounts(discoveries)
	fmt.Println("creations:")
	printCounts(creations)
	return nil
}

func printCounts[K ~string](counts map[K]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-18s %d\n", k, counts[K(k)])
	}
}
