package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hublink/internal/adapters"
	"hublink/internal/catalog"
	"hublink/internal/connections"
	"hublink/internal/dispatch"
	"hublink/internal/guard"
	"hublink/internal/hubapi"
	"hublink/internal/probe"
	"hublink/internal/vault"
	"hublink/pkg/config"
	"hublink/pkg/db"
	"hublink/pkg/logger"
	"hublink/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	if err := cfg.Validate(); err != nil {
		log.Fatalw("config", "err", err)
	}
	key := cfg.EncryptionKey
	if key == "" {
		// Memory-store dev mode only: nothing survives the process anyway.
		key = "hublink-dev-only"
		log.Warnw("ENCRYPTION_KEY not set, using dev key with in-memory store")
	}
	v, err := vault.New(key)
	if err != nil {
		log.Fatalw("vault", "err", err)
	}

	reg := catalog.NewRegistry(log)
	if err := adapters.RegisterBuiltins(reg); err != nil {
		log.Fatalw("builtin catalog", "err", err)
	}
	if cfg.CatalogDir != "" {
		if err := reg.LoadDir(cfg.CatalogDir, adapters.NewREST); err != nil {
			log.Warnw("catalog dir load", "dir", cfg.CatalogDir, "err", err)
		}
		log.Infow("catalog loaded", "integrations", len(reg.List()))
	}

	pool := db.MustConnect(cfg, log)
	var store connections.Store
	switch {
	case pool != nil:
		if err := connections.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		store = connections.NewPostgres(pool)
	case cfg.RedisURL != "":
		store = connections.NewRedis(db.MustRedis(cfg, log))
	case cfg.DataDir != "":
		store, err = connections.NewFile(cfg.DataDir)
		if err != nil {
			log.Fatalw("file store", "err", err)
		}
	default:
		store = connections.NewMemory()
		log.Warnw("no store backend configured, connections will not survive restarts")
	}

	g, err := guard.Load(context.Background(), cfg.PolicyFile)
	if err != nil {
		log.Fatalw("execute policy", "err", err)
	}

	client := &http.Client{Transport: middleware.OutboundTransport(nil)}
	prober := probe.New(client, cfg.ProbeTimeout)
	dispatcher := dispatch.New(log, reg, v, prober, store, g, client, pool, dispatch.Options{
		ExecuteTimeout: cfg.ExecuteTimeout,
		Retries:        cfg.Retries,
		RetryDelay:     cfg.RetryDelay,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: hubapi.NewServer(log, reg, dispatcher, store).Handler(cfg),
	}
	go func() {
		log.Infow("hub-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("hub-service stopped")
}
