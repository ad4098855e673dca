// handler.go — основной обработчик API каталога.
// Объединяет health и обработчики операций каталога.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
)

// Catalog — операции каталога, доступные через HTTP. Реализуется service.Facade.
type Catalog interface {
	ListFile(ctx context.Context, peerID, fileName, ownerHost string, ownerPort int)
	DelistFile(ctx context.Context, fileName, peerID string)
	SearchFiles(ctx context.Context, query string) []model.FileRef
	GetFileOwner(ctx context.Context, id int64) (model.FileOwner, bool)
	KeepAlive(ctx context.Context, peerID string) bool
	Disconnect(ctx context.Context, peerID string)
	GetTTL() int
}

// APIHandler — основной обработчик API каталога.
type APIHandler struct {
	catalog Catalog
	health  *HealthHandler
	logger  *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	catalog Catalog,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		catalog: catalog,
		health:  health,
		logger:  logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// maxBodyBytes — предел размера тела запроса.
const maxBodyBytes = 64 << 10

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. Неизвестные поля запрещены.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("пустое тело запроса")
		}
		return fmt.Errorf("некорректный JSON в теле запроса: %w", err)
	}
	return nil
}
