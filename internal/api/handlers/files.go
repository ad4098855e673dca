// files.go — обработчики объявлений файлов:
// POST /api/v1/files (listFile), POST /api/v1/files/delist (delistFile),
// GET /api/v1/files/{file_id} (getFileOwner).
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/fileshare-catalog/internal/api/errors"
	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
)

// listFileRequest — тело POST /api/v1/files.
type listFileRequest struct {
	PeerID    string `json:"peer_id"`
	FileName  string `json:"file_name"`
	OwnerHost string `json:"owner_host"`
	OwnerPort int    `json:"owner_port"`
}

// delistFileRequest — тело POST /api/v1/files/delist.
type delistFileRequest struct {
	FileName string `json:"file_name"`
	PeerID   string `json:"peer_id"`
}

// fileOwnerResponse — ответ GET /api/v1/files/{file_id}.
type fileOwnerResponse struct {
	ID        int64  `json:"id"`
	FileName  string `json:"file_name"`
	OwnerHost string `json:"owner_host"`
	OwnerPort int    `json:"owner_port"`
}

// ListFile — публикация или продление объявления. Всегда 204 для корректного запроса.
func (h *APIHandler) ListFile(w http.ResponseWriter, r *http.Request) {
	var req listFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	if msg := validateListFile(&req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}

	h.catalog.ListFile(r.Context(), req.PeerID, req.FileName, req.OwnerHost, req.OwnerPort)
	w.WriteHeader(http.StatusNoContent)
}

// validateListFile возвращает описание ошибки или пустую строку.
func validateListFile(req *listFileRequest) string {
	switch {
	case req.PeerID == "":
		return "peer_id обязателен"
	case req.FileName == "":
		return "file_name обязателен"
	case req.OwnerHost == "":
		return "owner_host обязателен"
	case req.OwnerPort < 1 || req.OwnerPort > 65535:
		return "owner_port должен быть в диапазоне 1-65535"
	}
	return ""
}

// DelistFile — снятие объявления. 204 и в случае no-op (нет записи или чужой владелец).
func (h *APIHandler) DelistFile(w http.ResponseWriter, r *http.Request) {
	var req delistFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	h.catalog.DelistFile(r.Context(), req.FileName, req.PeerID)
	w.WriteHeader(http.StatusNoContent)
}

// GetFileOwner — адрес владельца по идентификатору объявления.
func (h *APIHandler) GetFileOwner(w http.ResponseWriter, r *http.Request) {
	var fileID int64
	err := runtime.BindStyledParameterWithOptions("simple", "file_id", chi.URLParam(r, "file_id"), &fileID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationError(w, "Некорректный file_id: "+err.Error())
		return
	}

	owner, ok := h.catalog.GetFileOwner(r.Context(), fileID)
	if !ok {
		h.logger.Debug("Объявление не найдено", slog.Int64("file_id", fileID))
		apierrors.NotFound(w, "Файл не найден")
		return
	}

	writeJSON(w, http.StatusOK, toFileOwnerResponse(owner))
}

func toFileOwnerResponse(o model.FileOwner) fileOwnerResponse {
	return fileOwnerResponse{
		ID:        o.ID,
		FileName:  o.FileName,
		OwnerHost: o.Owner.Host,
		OwnerPort: o.Owner.Port,
	}
}
