// ABOUTME: "serve" subcommand: boots storage, catalog, session registry, MCP engine, transport and admin servers
// ABOUTME: wires STORAGE_BACKEND-selected objectstore/metastore/invocationlog implementations together

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/skillserver/internal/admin"
	"github.com/2389/skillserver/internal/auth"
	"github.com/2389/skillserver/internal/config"
	"github.com/2389/skillserver/internal/invocationlog"
	"github.com/2389/skillserver/internal/mcpengine"
	"github.com/2389/skillserver/internal/metastore"
	"github.com/2389/skillserver/internal/objectstore"
	"github.com/2389/skillserver/internal/observability"
	"github.com/2389/skillserver/internal/session"
	"github.com/2389/skillserver/internal/skillcatalog"
	"github.com/2389/skillserver/internal/transport"
)

const (
	logQueueCapacity = 1024
	logFlushInterval = 5 * time.Second
	sweeperInterval  = time.Minute
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the skillserver MCP and admin HTTP surfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("%w: loading config: %v", errConfigFailure, err)
	}

	logger := observability.SetupLogging(cfg.Logging.Level, cfg.Logging.Format)
	observability.PrintBanner(version)
	observability.PrintStatusLine("Config", configPath)
	observability.PrintStatusLine("HTTP", cfg.Server.HTTPAddr)
	observability.PrintStatusLine("Storage", cfg.Storage.Backend)

	shutdownTracing, err := observability.SetupTracing(ctx, "skillserver", cfg.Tracing.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfigFailure, err)
	}
	defer shutdownTracing(context.Background())

	objects, meta, logs, notifier, closeStorage, err := buildStorage(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", errStorageUnreachable, err)
	}
	defer closeStorage()

	catalog := skillcatalog.New(objects, meta)
	if err := catalog.Boot(ctx); err != nil {
		return fmt.Errorf("%w: booting catalog: %v", errConfigFailure, err)
	}

	registry := session.NewRegistry(cfg.SessionIdleTimeout(), cfg.SessionExpiry())
	logQueue := invocationlog.NewQueue(logs, logQueueCapacity, logFlushInterval)
	engine := mcpengine.New(catalog, registry, objects, meta, logQueue, cfg.ToolCallTimeout())

	go catalog.RunRefreshLoop(ctx, cfg.CatalogRefreshInterval(), notifier)
	go registry.RunSweeper(ctx, sweeperInterval)
	go logQueue.Run(ctx)

	readiness := func() error {
		_, err := meta.List(ctx, "active")
		return err
	}
	mcpServer := transport.New(engine, registry, transport.Info{
		Name:             "skillserver",
		Version:          version,
		ProtocolVersions: session.SupportedProtocolVersions,
		StorageBackend:   cfg.Storage.Backend,
	}, readiness)

	verifier := auth.NewVerifier(cfg.Admin.AuthToken)
	adminServer := admin.New(catalog, objects, logs, verifier)

	mux := http.NewServeMux()
	mux.Handle("/", mcpServer.Handler())
	mux.Handle("/admin/", adminServer.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		return fmt.Errorf("%w: serving: %v", errConfigFailure, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

// buildStorage selects the ObjectStore/MetadataStore/InvocationLog.Store
// triple named by cfg.Storage.Backend. The local backend's LocalStore
// doubles as the skillcatalog refresh loop's fsnotify-backed changeNotifier;
// the remote backend has no such shortcut and relies on the refresh ticker
// alone.
func buildStorage(cfg *config.Config) (objectstore.ObjectStore, metastore.MetadataStore, invocationlog.Store, interface {
	Changed() <-chan string
}, func(), error) {
	switch cfg.Storage.Backend {
	case "remote":
		objects, err := objectstore.NewRemoteStore(objectstore.RemoteConfig{
			Endpoint:  cfg.Storage.ObjectStoreEndpoint,
			Bucket:    cfg.Storage.ObjectStoreBucket,
			Prefix:    cfg.Storage.ObjectStorePrefix,
			AccessKey: cfg.Storage.ObjectStoreAccessKey,
			SecretKey: cfg.Storage.ObjectStoreSecretKey,
			Insecure:  !cfg.Storage.ObjectStoreUseTLS,
		})
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("connecting object store: %w", err)
		}
		meta, err := metastore.NewRedisStore(cfg.Storage.RedisAddr)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("connecting metadata store: %w", err)
		}
		logs, err := invocationlog.NewRedisStore(cfg.Storage.RedisAddr)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("connecting invocation log: %w", err)
		}
		closeAll := func() {
			objects.Close()
			meta.Close()
			logs.Close()
		}
		return objects, meta, logs, nil, closeAll, nil

	default:
		objects, err := objectstore.NewLocalStore(cfg.Storage.SkillCacheDir)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("opening local object store: %w", err)
		}
		meta, err := metastore.NewSQLiteStore(cfg.Storage.SkillCacheDir + "/metadata.db")
		if err != nil {
			objects.Close()
			return nil, nil, nil, nil, nil, fmt.Errorf("opening metadata store: %w", err)
		}
		logs, err := invocationlog.NewSQLiteStore(cfg.Storage.SkillCacheDir + "/invocation_log.db")
		if err != nil {
			objects.Close()
			meta.Close()
			return nil, nil, nil, nil, nil, fmt.Errorf("opening invocation log: %w", err)
		}
		closeAll := func() {
			objects.Close()
			meta.Close()
			logs.Close()
		}
		return objects, meta, logs, objects, closeAll, nil
	}
}
