package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/atinyakov/GophSpend/internal/certgen"
	"github.com/atinyakov/GophSpend/internal/client/app"
	"github.com/atinyakov/GophSpend/internal/client/connectivity"
	"github.com/atinyakov/GophSpend/internal/client/localstore"
	"github.com/atinyakov/GophSpend/internal/client/remote"
	"github.com/atinyakov/GophSpend/internal/client/syncengine"
	"github.com/atinyakov/GophSpend/internal/config"
	"github.com/atinyakov/GophSpend/internal/logger"
)

var errNotLoggedIn = errors.New("not logged in: run 'gophspend login' first")

// env carries the configuration and the lazily built client stack shared
// by all commands.
type env struct {
	cfg *config.Client
	log *logger.Logger

	httpClient *http.Client
	tokens     *remote.FileTokenSource

	closers []func()
}

func newEnv() *env {
	return &env{cfg: config.DefaultClient(), log: logger.New()}
}

// load applies the config file and environment, then lets flags given on
// the command line win again.
func (e *env) load(cmd *cobra.Command) error {
	flagged := *e.cfg
	if err := e.cfg.Load(); err != nil {
		return err
	}
	fs := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	override("url", &e.cfg.ServerURL, flagged.ServerURL)
	override("store", &e.cfg.StorePath, flagged.StorePath)
	override("backend", &e.cfg.Backend, flagged.Backend)
	override("session", &e.cfg.SessionPath, flagged.SessionPath)
	override("ca", &e.cfg.CACert, flagged.CACert)
	override("log-file", &e.cfg.LogFile, flagged.LogFile)
	override("log-level", &e.cfg.LogLevel, flagged.LogLevel)
	if e.cfg.Backend != config.BackendFile && e.cfg.Backend != config.BackendSQLite {
		return fmt.Errorf("unknown backend %q", e.cfg.Backend)
	}

	if err := e.log.InitFile(e.cfg.LogLevel, e.cfg.LogFile); err != nil {
		return err
	}
	e.onClose(func() { _ = e.log.Log.Sync() })

	e.httpClient = &http.Client{Timeout: 10 * time.Second}
	if e.cfg.CACert != "" {
		tlsCfg, err := certgen.ClientConfig(e.cfg.CACert)
		if err != nil {
			return err
		}
		e.httpClient.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}

	tokens, err := remote.NewFileTokenSource(e.cfg.SessionPath)
	if err != nil {
		return err
	}
	e.tokens = tokens
	return nil
}

func (e *env) onClose(fn func()) {
	e.closers = append(e.closers, fn)
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// sessionProber counts the server as reachable only with a stored session,
// so a logged-out client keeps writing locally.
type sessionProber struct {
	adapter *remote.Adapter
	tokens  remote.TokenSource
}

func (p sessionProber) Ping(ctx context.Context) error {
	if p.tokens.Token() == "" {
		return errNotLoggedIn
	}
	return p.adapter.Ping(ctx)
}

// stackOptions selects the background workers of a command. One-shot
// commands probe connectivity once; the shell keeps everything running.
type stackOptions struct {
	background bool
}

// openApp builds and starts the client stack. It is stopped when the
// command finishes.
func (e *env) openApp(ctx context.Context, opts stackOptions) (*app.App, error) {
	zl := e.log.Log

	var (
		backend localstore.Backend
		watcher app.Watcher
	)
	switch e.cfg.Backend {
	case config.BackendSQLite:
		b, err := localstore.OpenSQLite(e.cfg.StorePath)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		b, err := localstore.OpenFile(e.cfg.StorePath)
		if err != nil {
			return nil, err
		}
		backend = b
		if opts.background {
			watcher = b
		}
	}
	e.onClose(func() { _ = backend.Close() })

	store := localstore.New(backend)
	adapter := remote.NewAdapter(e.cfg.ServerURL, e.httpClient, e.tokens, zl)

	probeInterval := time.Duration(0)
	if opts.background {
		probeInterval = e.cfg.ProbeInterval
	}
	monitor := connectivity.NewMonitor(sessionProber{adapter: adapter, tokens: e.tokens}, probeInterval, zl)
	engine := syncengine.New(store, adapter, zl)

	deps := app.Deps{
		Local:   store,
		Remote:  adapter,
		Sync:    engine,
		Monitor: monitor,
	}
	if watcher != nil {
		deps.Watcher = watcher
	}
	if opts.background {
		deps.Scheduler = syncengine.NewScheduler(engine, monitor, e.cfg.DrainInterval, zl)
	}

	a := app.New(deps, zl)
	if err := a.Start(ctx); err != nil {
		a.Stop()
		return nil, err
	}
	e.onClose(a.Stop)
	return a, nil
}

func (e *env) authClient() *remote.AuthClient {
	return remote.NewAuthClient(e.cfg.ServerURL, e.httpClient)
}
