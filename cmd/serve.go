package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/apaudit/internal/ingest"
	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/internal/normalize"
	"github.com/sells-group/apaudit/internal/notify"
	"github.com/sells-group/apaudit/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
		r.Use(rateLimit(cfg.Server.RatePerSecond, cfg.Server.RateBurst))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/api/tenants/{tenant}", func(r chi.Router) {
			r.Post("/detect", env.handleDetect)
			r.Post("/sync", env.handleSync)
			r.Post("/alerts/dispatch", env.handleDispatch)
			r.Get("/anomalies", env.handleListAnomalies)
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port(servePort)),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port(servePort)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func port(flag int) int {
	if flag != 0 {
		return flag
	}
	return cfg.Server.Port
}

// tenantFromRequest authenticates the X-API-Key header and resolves it to
// the tenant named in the path. A key for a different tenant is rejected the
// same as an unknown key, so callers cannot probe tenant names.
func (e *env) tenantFromRequest(r *http.Request) (*model.Tenant, int, error) {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		return nil, http.StatusUnauthorized, eris.New("missing api key")
	}
	tenant, err := e.Store.GetTenantByAPIKey(r.Context(), key)
	if err != nil {
		return nil, http.StatusUnauthorized, eris.Wrap(err, "invalid api key")
	}
	if tenant.Name != chi.URLParam(r, "tenant") {
		return nil, http.StatusUnauthorized, eris.New("api key does not match tenant")
	}
	return tenant, http.StatusOK, nil
}

func (e *env) handleDetect(w http.ResponseWriter, r *http.Request) {
	tenant, status, err := e.tenantFromRequest(r)
	if err != nil {
		writeError(w, status, "invalid api key")
		return
	}

	run, err := e.engineFor(*tenant).Run(r.Context(), *tenant)
	if err != nil {
		zap.L().Error("detection run failed", zap.String("tenant", tenant.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "detection run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (e *env) handleSync(w http.ResponseWriter, r *http.Request) {
	tenant, status, err := e.tenantFromRequest(r)
	if err != nil {
		writeError(w, status, "invalid api key")
		return
	}

	var batch ingest.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch body")
		return
	}

	ig := ingest.New(e.Store, normalize.NewResolver(0), cfg.Detection.LineItemTolerance)
	counts, err := ig.Sync(r.Context(), *tenant, batch)
	if err != nil {
		zap.L().Error("sync failed", zap.String("tenant", tenant.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (e *env) handleDispatch(w http.ResponseWriter, r *http.Request) {
	tenant, status, err := e.tenantFromRequest(r)
	if err != nil {
		writeError(w, status, "invalid api key")
		return
	}

	counts, err := notify.New(e.Store).Dispatch(r.Context(), *tenant)
	if err != nil {
		zap.L().Error("alert dispatch failed", zap.String("tenant", tenant.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "alert dispatch failed")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (e *env) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	tenant, status, err := e.tenantFromRequest(r)
	if err != nil {
		writeError(w, status, "invalid api key")
		return
	}

	q := r.URL.Query()
	filter := store.AnomalyFilter{
		TenantID: tenant.ID,
		Type:     model.AnomalyType(q.Get("type")),
		Status:   model.AnomalyStatus(q.Get("status")),
		RunID:    q.Get("run_id"),
	}
	anomalies, err := e.Store.ListAnomalies(r.Context(), filter)
	if err != nil {
		zap.L().Error("list anomalies failed", zap.String("tenant", tenant.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list anomalies failed")
		return
	}
	if anomalies == nil {
		anomalies = []model.Anomaly{}
	}
	writeJSON(w, http.StatusOK, anomalies)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
