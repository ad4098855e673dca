// peers.go — обработчики операций жизненного цикла пира:
// POST /api/v1/peers/{peer_id}/heartbeat, DELETE /api/v1/peers/{peer_id}, GET /api/v1/ttl.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/fileshare-catalog/internal/api/errors"
)

type heartbeatResponse struct {
	Alive bool `json:"alive"`
}

type ttlResponse struct {
	TTLSeconds int `json:"ttl_seconds"`
}

// KeepAlive — heartbeat. alive=false означает, что у пира нет объявлений
// и ему следует опубликовать их заново.
func (h *APIHandler) KeepAlive(w http.ResponseWriter, r *http.Request) {
	peerID, ok := bindPeerID(w, r)
	if !ok {
		return
	}

	alive := h.catalog.KeepAlive(r.Context(), peerID)
	writeJSON(w, http.StatusOK, heartbeatResponse{Alive: alive})
}

// Disconnect — удаление всех объявлений пира. Повторный вызов — no-op.
func (h *APIHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	peerID, ok := bindPeerID(w, r)
	if !ok {
		return
	}

	h.catalog.Disconnect(r.Context(), peerID)
	w.WriteHeader(http.StatusNoContent)
}

// GetTTL — порог устаревания в секундах.
func (h *APIHandler) GetTTL(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ttlResponse{TTLSeconds: h.catalog.GetTTL()})
}

// bindPeerID извлекает peer_id из пути. При ошибке ответ уже записан.
func bindPeerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var peerID string
	err := runtime.BindStyledParameterWithOptions("simple", "peer_id", chi.URLParam(r, "peer_id"), &peerID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationError(w, "Некорректный peer_id: "+err.Error())
		return "", false
	}
	if peerID == "" {
		apierrors.ValidationError(w, "peer_id обязателен")
		return "", false
	}
	return peerID, true
}
