package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apaudit/internal/config"
	"github.com/sells-group/apaudit/internal/detect"
	"github.com/sells-group/apaudit/internal/gate"
	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/internal/store"
	"github.com/sells-group/apaudit/pkg/scopereview"
)

// env bundles the initialized dependencies shared by commands.
type env struct {
	Store     store.Store
	Scope     scopereview.Client
	Overrides map[string]config.TenantOverride
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	overrides, err := config.LoadTenantOverrides(cfg.Detection.TenantOverridesPath)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	e := &env{Store: st, Overrides: overrides}
	if cfg.Anthropic.Key != "" {
		e.Scope = scopereview.NewClient(cfg.Anthropic.Key, scopereview.WithModel(cfg.Anthropic.Model))
	} else {
		zap.L().Info("no anthropic key configured; scope-drift detection disabled")
	}
	return e, nil
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "apaudit.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// engineFor builds a detection engine with the tenant's resolved tunables.
func (e *env) engineFor(tenant model.Tenant) *detect.Engine {
	var override *config.TenantOverride
	if o, ok := e.Overrides[tenant.Name]; ok {
		override = &o
	}

	detectCfg := cfg.Detection.Resolve(override)
	g := gate.New(cfg.Detection.Gate(override))

	eng := detect.NewEngine(e.Store, g, detectCfg)
	if e.Scope != nil {
		eng = eng.WithScope(detect.NewScopeDetector(e.Scope, cfg.Anthropic.ScopeTimeout()))
	}
	return eng
}
