// Package handler は運用用のHTTPエンドポイントを提供する。
// 公開するのは/health（DB疎通確認）と/metrics（Prometheusスクレイプ）のみ。
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/jobwatch/internal/metrics"
	"github.com/hitoshi/jobwatch/internal/middleware"
)

// healthTimeout はDB疎通確認のタイムアウト。
const healthTimeout = 3 * time.Second

// NewRouter は運用エンドポイントのルーティングを設定したchi.Routerを返す。
func NewRouter(db *sql.DB, gatherer prometheus.Gatherer, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))

	r.Get("/health", handleHealth(db))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	return r
}

// handleHealth はDBへのPingで死活を確認するハンドラーを返す。
func handleHealth(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	}
}
