package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/seantiz/graphkeep/internal/api"
	"github.com/seantiz/graphkeep/internal/cache"
	"github.com/seantiz/graphkeep/internal/config"
	"github.com/seantiz/graphkeep/internal/engine"
	"github.com/seantiz/graphkeep/internal/greeting"
	"github.com/seantiz/graphkeep/internal/health"
	"github.com/seantiz/graphkeep/internal/metrics"
	"github.com/seantiz/graphkeep/internal/model"
	"github.com/seantiz/graphkeep/internal/registry"
)

const (
	logStorageNode      = "graphkeep.storage"
	greetingStorageNode = "graphkeep.greetings"
	entryCacheName      = "greeting-entries"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("graphkeep: starting",
		"listen_addr", cfg.ListenAddr,
		"config_file", cfg.ConfigFile,
		"storage_dir", cfg.StorageDir,
	)

	tree, err := loadTree(cfg)
	if err != nil {
		log.Fatalf("failed to load config tree: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New(logger.With("component", "registry"))
	if err := run(ctx, cfg, tree, reg, logger); err != nil {
		logger.Error("graphkeep: exiting", "error", err)
		if rerr := reg.ReleaseAll(context.Background()); rerr != nil {
			logger.Error("release resources", "error", rerr)
		}
		os.Exit(1)
	}
	if err := reg.ReleaseAll(context.Background()); err != nil {
		log.Fatalf("release resources: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, tree *config.Tree, reg *registry.Registry, logger *slog.Logger) error {
	resolver := config.NewResolver(tree, logStorageNode)

	logCtx, err := engine.Provide(ctx, reg, resolver, "", logger)
	if err != nil {
		return err
	}
	greetCtx, err := engine.Provide(ctx, reg, resolver, greetingStorageNode, logger)
	if err != nil {
		return err
	}

	// Entry streams must end before the HTTP server waits for open connections.
	broker := greeting.NewEntryBroker()
	defer broker.Close()
	context.AfterFunc(ctx, broker.Close)

	logs := greeting.NewLogService(logCtx, broker, logger.With("component", "greeting-log"))
	if err := logs.InitRoot(ctx); err != nil {
		return err
	}
	provider := greeting.NewProvider(greetCtx)
	if err := provider.InitGreetings(ctx); err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// The API fills this cache itself so it can drop lists that a concurrent
	// greeting made stale; a read-through loader could not.
	entryCache, err := cache.Provide[string, []model.LogEntry](ctx, reg, resolver, entryCacheName, "",
		cache.WithLogger(logger.With("component", "cache")),
		cache.WithRegisterer(promReg),
	)
	if err != nil {
		return err
	}

	for node, ec := range map[string]*engine.ExecutionContext{
		logStorageNode:      logCtx,
		greetingStorageNode: greetCtx,
	} {
		labels := prometheus.Labels{"storage": node}
		sm := metrics.NewStoreMetrics(ec, tree.Node("metrics"),
			metrics.WithLogger(logger.With("component", "metrics")),
			metrics.WithConstLabels(labels),
		)
		if err := promReg.Register(sm); err != nil {
			return err
		}
		if err := promReg.Register(metrics.NewQueueGauge(ec, labels)); err != nil {
			return err
		}
	}

	greetingText, _ := tree.Node("app").String("greeting")
	srv := api.NewServer(cfg.ListenAddr, api.Deps{
		Log:        logs,
		Greetings:  provider,
		Entries:    broker,
		Health:     health.NewStoreCheck(logCtx, health.WithTimeout(cfg.HealthTimeout)),
		EntryCache: entryCache,
		Greeting:   greetingText,
		Metrics:    promReg,
	}, logger)

	return srv.Run(ctx)
}

// loadTree reads the config file when one is set. Storage directories the
// file leaves out come from the environment.
func loadTree(cfg config.Config) (*config.Tree, error) {
	tree := config.NewTree(nil)
	if cfg.ConfigFile != "" {
		t, err := config.LoadTree(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		tree = t
	}

	defaults := map[string]string{
		logStorageNode:      cfg.StorageDir,
		greetingStorageNode: filepath.Join(cfg.StorageDir, "greetings"),
	}
	for node, dir := range defaults {
		if _, ok := tree.Node(node).String("storage-directory"); !ok {
			tree.Set(node+".storage-directory", dir)
		}
	}
	return tree, nil
}
