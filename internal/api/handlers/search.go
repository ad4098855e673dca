// search.go — обработчик GET /api/v1/files?query= (searchFiles).
// Ответ содержит только id и имя файла, адреса владельцев не раскрываются.
package handlers

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/fileshare-catalog/internal/api/errors"
	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
)

// searchItem — элемент результата поиска.
type searchItem struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
}

// searchResponse — ответ GET /api/v1/files.
type searchResponse struct {
	Items []searchItem `json:"items"`
}

// SearchFiles — поиск по подстроке имени без учёта регистра.
// Отсутствующий query равнозначен пустой строке (все объявления).
func (h *APIHandler) SearchFiles(w http.ResponseWriter, r *http.Request) {
	var query string
	if err := runtime.BindQueryParameter("form", true, false, "query", r.URL.Query(), &query); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр query: "+err.Error())
		return
	}

	refs := h.catalog.SearchFiles(r.Context(), query)

	writeJSON(w, http.StatusOK, searchResponse{Items: toSearchItems(refs)})
}

// toSearchItems конвертирует доменные FileRef в элементы ответа.
// Всегда возвращает не-nil срез: пустой результат сериализуется как [].
func toSearchItems(refs []model.FileRef) []searchItem {
	items := make([]searchItem, 0, len(refs))
	for _, ref := range refs {
		items = append(items, searchItem{ID: ref.ID, FileName: ref.FileName})
	}
	return items
}
