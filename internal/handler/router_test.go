package handler

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// unreachableDB は接続先のないDBハンドルを返す。Pingは必ず失敗する。
func unreachableDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", "postgres://127.0.0.1:1/jobwatch?sslmode=disable&connect_timeout=1")
	if err != nil {
		t.Fatalf("sql.Open returned error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRouter_Health_Unhealthy はDBに到達できない場合に/healthが503を
// 返すことをテストする。
func TestRouter_Health_Unhealthy(t *testing.T) {
	router := NewRouter(unreachableDB(t), prometheus.NewRegistry(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(rec.Body.String(), "unhealthy") {
		t.Errorf("body = %q, want to contain %q", rec.Body.String(), "unhealthy")
	}
}

// TestRouter_Metrics は/metricsがPrometheus形式のレスポンスを返すことをテストする。
func TestRouter_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobwatch_test_total",
		Help: "テスト用カウンタ",
	})
	registry.MustRegister(counter)
	counter.Inc()

	router := NewRouter(unreachableDB(t), registry, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "jobwatch_test_total 1") {
		t.Errorf("body does not contain counter:\n%s", rec.Body.String())
	}
}

// TestRouter_NotFound は未定義のパスが404を返すことをテストする。
func TestRouter_NotFound(t *testing.T) {
	router := NewRouter(unreachableDB(t), prometheus.NewRegistry(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
