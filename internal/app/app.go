// Package app wires the server components and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"pawtalk/internal/retention"
	"pawtalk/pkg/api"
	"pawtalk/pkg/auth"
	"pawtalk/pkg/broadcast"
	"pawtalk/pkg/config"
	"pawtalk/pkg/logger"
	"pawtalk/pkg/search"
	"pawtalk/pkg/store"
	"pawtalk/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg    *config.Config
	addr   string
	dbPath string

	version   string
	commit    string
	buildDate string

	st        *store.Store
	index     *search.Index
	refresher *search.Refresher
	hub       *broadcast.Hub
	srv       *http.Server
}

// New initializes everything that does not need a running context:
// runtime keys, content limits, the store, the search index and the
// hub. Call Run to start serving.
func New(cfg *config.Config, addr, dbPath, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if dbPath == "" {
		return nil, fmt.Errorf("db path required")
	}

	backendKeys, signingKeys, _ := config.LoadEnvOverrides(cfg)
	config.SetRuntime(&config.RuntimeConfig{BackendKeys: backendKeys, SigningKeys: signingKeys})

	initLimits(cfg)

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dbPath, err)
	}

	index := search.New(nil)
	refresher := search.NewRefresher(index, cfg.Search.QueueCapacity)
	st.SetIndexer(refresher)

	hub := broadcast.NewHub(st)

	return &App{
		cfg:       cfg,
		addr:      addr,
		dbPath:    dbPath,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		st:        st,
		index:     index,
		refresher: refresher,
		hub:       hub,
	}, nil
}

// initLimits installs configured content limits, keeping defaults for
// unset values.
func initLimits(cfg *config.Config) {
	validation.SetLimits(validation.Limits{
		MaxContentRunes:    cfg.Limits.MaxContentRunes,
		MaxAttachments:     cfg.Limits.MaxAttachments,
		MaxAttachmentBytes: cfg.Limits.MaxAttachmentBytes.Int64(),
	})
}

// Run starts the background workers and the HTTP server, blocking until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.refresher.Start()
	go a.hub.Run()

	stopRetention, err := retention.Start(ctx, a.cfg, a.st)
	if err != nil {
		return err
	}
	defer stopRetention()

	if err := a.st.Reindex(a.index); err != nil {
		return fmt.Errorf("rebuild search index: %w", err)
	}

	sec := auth.SecConfig{
		AllowedOrigins: a.cfg.Security.CORS.AllowedOrigins,
		RPS:            a.cfg.Security.RateLimit.RPS,
		Burst:          a.cfg.Security.RateLimit.Burst,
		IPWhitelist:    a.cfg.Security.IPWhitelist,
		BackendKeys:    keySet(a.cfg.Security.APIKeys.Backend),
		FrontendKeys:   keySet(a.cfg.Security.APIKeys.Frontend),
		AdminKeys:      keySet(a.cfg.Security.APIKeys.Admin),
	}
	handler := api.NewRouter(&api.API{
		Store:       a.st,
		Index:       a.index,
		Hub:         a.hub,
		PageSize:    a.cfg.Search.PageSize,
		MaxPageSize: a.cfg.Search.MaxPageSize,
	}, sec)

	a.srv = &http.Server{Addr: a.addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", a.addr, "version", a.version)
		var serveErr error
		if a.cfg.Server.TLS.CertFile != "" && a.cfg.Server.TLS.KeyFile != "" {
			serveErr = a.srv.ListenAndServeTLS(a.cfg.Server.TLS.CertFile, a.cfg.Server.TLS.KeyFile)
		} else {
			serveErr = a.srv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.srv != nil {
		_ = a.srv.Shutdown(context.Background())
	}
	a.hub.Stop()
	a.refresher.Stop()
	if err := a.st.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Sync()
}

func keySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}
