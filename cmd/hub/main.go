// Command hub is the supervisor: it loads the config file, wires the
// bus, storage and alert actors, spawns one collector per server and one
// service monitor per service, starts the query/stream API, and owns
// shutdown ordering for all of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fleetwatch/hub/pkg/alert"
	"github.com/fleetwatch/hub/pkg/api"
	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/collector"
	"github.com/fleetwatch/hub/pkg/config"
	"github.com/fleetwatch/hub/pkg/log"
	"github.com/fleetwatch/hub/pkg/servicemonitor"
	"github.com/fleetwatch/hub/pkg/storage"
	"github.com/fleetwatch/hub/pkg/types"
)

// getEnv returns the environment variable value or def if unset/empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func main() {
	configPath := flag.String("f", "", "path to hub config file (required)")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "hub: -f <config-file> is required")
		os.Exit(1)
	}

	// Local overrides (HUB_LISTEN_ADDR, HUB_BEARER_TOKEN, ...) if a .env is
	// present in the working directory; a missing file is not an error.
	_ = godotenv.Load()

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: getEnvBool("HUB_JSON_LOGS", true), Output: os.Stdout})

	resolved, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("failed to load config", err)
		os.Exit(1)
	}

	if err := run(resolved); err != nil {
		log.Errorf("hub exited with error", err)
		os.Exit(1)
	}
}

func run(resolved types.ResolvedConfig) error {
	metricBus := bus.New[types.MetricEvent]()
	checkBus := bus.New[types.ServiceCheckEvent]()

	backend, err := buildBackend(resolved.Storage)
	if err != nil {
		return fmt.Errorf("building storage backend: %w", err)
	}

	// C6 and C5 subscribe to the bus before any C3/C4 starts publishing, so
	// neither misses a server's or service's first event.
	storageHandle := storage.Spawn(backend, resolved.Storage.RetentionDays, metricBus, checkBus)
	alertHandle := alert.Spawn(resolved.Servers, resolved.Services, metricBus, checkBus)

	collectors := make([]*collector.Handle, 0, len(resolved.Servers))
	for _, server := range resolved.Servers {
		collectors = append(collectors, collector.Spawn(server, metricBus))
	}

	monitors := make([]*servicemonitor.Handle, 0, len(resolved.Services))
	for _, service := range resolved.Services {
		monitors = append(monitors, servicemonitor.Spawn(service, checkBus))
	}

	apiServer := api.NewServer(api.Deps{
		Storage:     storageHandle,
		MetricBus:   metricBus,
		CheckBus:    checkBus,
		Servers:     resolved.Servers,
		Services:    resolved.Services,
		BearerToken: getEnv("HUB_BEARER_TOKEN", ""),
		EnableCORS:  getEnvBool("HUB_ENABLE_CORS", false),
		StartTime:   time.Now(),
	})

	listenAddr := getEnv("HUB_LISTEN_ADDR", ":8080")
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- apiServer.Start(listenAddr)
	}()

	log.Info(fmt.Sprintf("hub supervisor started: %d servers, %d services", len(resolved.Servers), len(resolved.Services)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info(fmt.Sprintf("received %s, shutting down", sig))
	case err := <-serveErr:
		if err != nil {
			log.Errorf("api server failed", err)
		}
	}

	shutdown(apiServer, collectors, monitors, alertHandle, storageHandle)
	return nil
}

// shutdown follows the supervisor's documented order: collectors first (no
// more new metrics), then service monitors, then the alert actor (nothing
// left to evaluate), then storage (so its final flush sees everything the
// actors above already published), then the API server.
func shutdown(apiServer *api.Server, collectors []*collector.Handle, monitors []*servicemonitor.Handle, alertHandle *alert.Handle, storageHandle *storage.Handle) {
	for _, c := range collectors {
		c.Shutdown()
	}
	for _, m := range monitors {
		m.Shutdown()
	}
	alertHandle.Shutdown()
	storageHandle.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Errorf("api server shutdown", err)
	}
	log.Info("hub supervisor stopped")
}

func buildBackend(cfg types.ResolvedStorageConfig) (storage.Backend, error) {
	switch cfg.Kind {
	case types.StorageSQLite:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewSQLiteBackend(ctx, cfg.Path)
	default:
		return storage.NewMemoryBackend(), nil
	}
}
