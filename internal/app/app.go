// Package app is the composition root shared by the CLI commands: it picks
// the live and mock repositories once and wires them into the engine.
package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"hseb5/internal/ai"
	"hseb5/internal/config"
	"hseb5/internal/engine"
	"hseb5/internal/events"
	"hseb5/internal/fallback"
	"hseb5/internal/localstore"
	"hseb5/internal/metrics"
	"hseb5/internal/repo"
	"hseb5/internal/repo/httprepo"
	"hseb5/internal/repo/memory"
	"hseb5/internal/session"
	hsesdk "hseb5/sdk/go"
)

// SessionTTL is the lifetime of tokens issued by the local store.
const SessionTTL = 8 * time.Hour

type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Store   *localstore.Store
	Session *session.Manager
	Engine  *engine.Engine
	Events  events.Writer
	// Offline is the repository set behind demo mode and hseb5 serve.
	Offline repo.Repositories
	// Completer is nil when no OpenAI key is configured; the wizard then
	// simulates extraction.
	Completer ai.Completer
}

// Open wires a workspace. The live backend is skipped in demo mode.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := localstore.Open(ctx, cfg.Workspace)
	if err != nil {
		return nil, err
	}
	mem := memory.New(memory.Options{Secret: cfg.Server.JWTSecret, TokenTTL: SessionTTL})
	if err := store.Bootstrap(ctx, mem.Repositories()); err != nil {
		store.Close()
		return nil, err
	}
	sess := session.New(store)
	if err := sess.Load(ctx); err != nil {
		store.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Store:   store,
		Session: sess,
		Events:  events.Writer{DB: store.DB},
	}
	var live *repo.Repositories
	if !cfg.IsDemo() {
		client := hsesdk.New(cfg.API.BaseURL, cfg.Timeout())
		client.Tokens = hsesdk.TokenFunc(sess.Token)
		repos := httprepo.New(client)
		live = &repos
	}
	a.Offline = MockRepositories(store, mem, cfg.Server.JWTSecret)
	a.Engine = engine.New(live, a.Offline, fallback.Policy{
		Demo:     cfg.IsDemo(),
		Disabled: !cfg.Demo.Fallback,
		Delay:    cfg.FallbackDelay(),
		Metrics:  a.Metrics,
	}, logger)

	completer, err := ai.NewOpenAI(ai.Options{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Logger:  logger,
	})
	switch {
	case err == nil:
		a.Completer = completer
	case errors.Is(err, ai.ErrNotConfigured):
		logger.Debug("no openai key, wizard extraction is simulated")
	default:
		store.Close()
		return nil, err
	}
	return a, nil
}

// MockRepositories is the offline data set: risks, DVRs and users persist
// in the workspace store, the rest is the in-process demo data.
func MockRepositories(store *localstore.Store, mem *memory.Store, secret string) repo.Repositories {
	repos := mem.Repositories()
	if secret == "" {
		secret = memory.DefaultSecret
	}
	risks := localstore.Risks{S: store}
	repos.Risks = risks
	repos.DVRs = localstore.DVRs{S: store, Risks: risks}
	repos.Users = localstore.Users{S: store}
	repos.Auth = localstore.Auth{S: store, Secret: secret, TTL: SessionTTL}
	return repos
}

// Actor is the email recorded on activity events.
func (a *App) Actor() string {
	if s, ok := a.Session.Current(); ok {
		return s.User.Email
	}
	return "anonymous"
}

// Record appends an activity event. Failures are logged, not returned.
func (a *App) Record(ctx context.Context, e events.Event) {
	if e.Actor == "" {
		e.Actor = a.Actor()
	}
	if err := a.Events.Append(ctx, e); err != nil {
		a.Logger.Warn("activity log append failed", zap.String("type", e.Type), zap.Error(err))
	}
}

func (a *App) Close() error {
	_ = a.Logger.Sync()
	return a.Store.Close()
}
