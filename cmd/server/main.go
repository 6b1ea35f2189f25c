// Command server is the entry point for opsdec, a self-hosted activity
// monitor that polls Plex, Jellyfin, Emby, and Audiobookshelf servers,
// tracks playback sessions through their lifecycle, and exposes the
// result over a JSON/WebSocket API.
//
// Startup wires components in dependency order: Store, ImageCache,
// AuthCore, PushHub, SessionEngine, JobRunner. The push hub and session
// engine run under the supervisor's realtime branch, the job runner under
// its maintenance branch, and the HTTP listener alongside both - a crash
// or repeated failure confined to one branch never takes the others down.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mondominator/opsdec/internal/adapter"
	"github.com/mondominator/opsdec/internal/api"
	"github.com/mondominator/opsdec/internal/audit"
	"github.com/mondominator/opsdec/internal/authcore"
	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/cryptokit"
	"github.com/mondominator/opsdec/internal/imagecache"
	"github.com/mondominator/opsdec/internal/jobrunner"
	"github.com/mondominator/opsdec/internal/logging"
	"github.com/mondominator/opsdec/internal/models"
	"github.com/mondominator/opsdec/internal/pushhub"
	"github.com/mondominator/opsdec/internal/sessionengine"
	"github.com/mondominator/opsdec/internal/store"
	"github.com/mondominator/opsdec/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("environment", cfg.Server.Environment).Msg("starting opsdec")

	st, err := store.Open(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing store")
		}
	}()

	tokens, err := cryptokit.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.AccessTokenTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize token manager")
	}
	encryptor, err := cryptokit.NewCredentialEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize credential encryptor")
	}

	auditLogger := audit.NewLogger(st, 256)

	images, err := imagecache.New(st, cfg.ImageCache, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize image cache")
	}

	authSvc := authcore.New(st, tokens, auditLogger, cfg.Security)

	hub := pushhub.NewHub()

	registry := adapter.NewRegistry(
		adapter.NewPlexAdapter(nil),
		adapter.NewJellyfinAdapter(nil),
		adapter.NewEmbyAdapter(nil),
		adapter.NewAudiobookshelfAdapter(nil),
	)

	engine := sessionengine.New(st, registry, encryptor, hub, cfg.SessionEngine, cfg.History)

	runner := jobrunner.New(st, images, cfg.JobRunner.SweepInterval, cfg.ImageCache.TTL, cfg.ImageCache.MaxSizeBytes)

	if err := bootstrapServers(context.Background(), st, encryptor, cfg.Bootstrap); err != nil {
		logging.Warn().Err(err).Msg("failed to apply server bootstrap config")
	}

	restart := make(chan struct{}, 1)

	httpAPI := api.New(api.Deps{
		Store:     st,
		Auth:      authSvc,
		Tokens:    tokens,
		Encryptor: encryptor,
		Audit:     auditLogger,
		Images:    images,
		Hub:       hub,
		Engine:    engine,
		Adapters:  registry,
		Config:    cfg,
		Restart:   restart,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      httpAPI.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.New(supervisor.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddRealtime(hub)
	tree.AddRealtime(engine)
	tree.AddMaintenance(runner)
	tree.AddRealtime(supervisor.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := tree.ServeBackground(ctx)
	logging.Info().Str("addr", httpServer.Addr).Msg("opsdec running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-restart:
		logging.Info().Msg("restart requested via monitoring endpoint")
	}

	cancel()
	if err := <-done; err != nil {
		logging.Error().Err(err).Msg("supervisor tree stopped with error")
	}
	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}

	logging.Info().Msg("opsdec stopped")
}

// bootstrapServers injects servers described by OPSDEC_BOOTSTRAP_SERVERS_JSON
// at startup, skipping any whose base URL is already registered. This lets
// an operator provision media servers declaratively instead of through the
// admin API on first run.
func bootstrapServers(ctx context.Context, st *store.Store, encryptor *cryptokit.CredentialEncryptor, cfg config.BootstrapConfig) error {
	if cfg.ServersJSON == "" {
		return nil
	}

	var entries []struct {
		Kind       models.ServerKind `json:"kind"`
		Name       string            `json:"name"`
		BaseURL    string            `json:"base_url"`
		Credential string            `json:"credential"`
	}
	if err := json.Unmarshal([]byte(cfg.ServersJSON), &entries); err != nil {
		return fmt.Errorf("parse bootstrap servers json: %w", err)
	}

	existing, err := st.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("list existing servers: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, srv := range existing {
		known[srv.BaseURL] = true
	}

	for _, entry := range entries {
		if known[entry.BaseURL] {
			continue
		}
		encrypted, err := encryptor.Encrypt(entry.Credential)
		if err != nil {
			return fmt.Errorf("encrypt bootstrap credential for %s: %w", entry.Name, err)
		}
		srv := &models.Server{
			Kind:                entry.Kind,
			Name:                entry.Name,
			BaseURL:             entry.BaseURL,
			EncryptedCredential: encrypted,
			Enabled:             true,
			Origin:              models.ServerOriginEnvironment,
		}
		if err := st.CreateServer(ctx, srv); err != nil {
			return fmt.Errorf("create bootstrap server %s: %w", entry.Name, err)
		}
		logging.Info().Str("name", entry.Name).Str("kind", string(entry.Kind)).Msg("bootstrapped server from environment")
	}
	return nil
}
