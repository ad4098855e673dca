// metrics.go — Prometheus HTTP метрики каталога.
// Регистрирует метрики: cat_http_requests_total, cat_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики каталога
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cat_http_requests_total",
			Help: "Общее количество HTTP-запросов к каталогу",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cat_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к каталогу в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет идентификаторы в пути на шаблоны:
// /api/v1/files/42 → /api/v1/files/{file_id}
// /api/v1/peers/<uuid>/heartbeat → /api/v1/peers/{peer_id}/heartbeat
// Неизвестные пути сводятся к "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/files", "/api/v1/files/delist", "/api/v1/ttl":
		return path
	}

	const (
		filesPrefix = "/api/v1/files/"
		peersPrefix = "/api/v1/peers/"
	)

	if rest, ok := strings.CutPrefix(path, filesPrefix); ok && rest != "" && !strings.Contains(rest, "/") {
		return filesPrefix + "{file_id}"
	}

	if rest, ok := strings.CutPrefix(path, peersPrefix); ok && rest != "" {
		peer, suffix, _ := strings.Cut(rest, "/")
		switch {
		case peer == "":
		case suffix == "":
			return peersPrefix + "{peer_id}"
		case suffix == "heartbeat":
			return peersPrefix + "{peer_id}/heartbeat"
		}
	}

	return "other"
}
