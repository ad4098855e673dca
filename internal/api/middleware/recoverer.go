// recoverer.go — перехват паники в обработчиках.
// Ответ 500 пишется в едином JSON-формате ошибок API.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/bigkaa/fileshare-catalog/internal/api/errors"
)

// Recoverer возвращает middleware, который логирует панику со стеком
// и отвечает 500 INTERNAL_ERROR.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Прерывание ответа сервером, не ошибка обработчика
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.Error("Паника при обработке запроса",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", chimw.GetReqID(r.Context())),
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())),
				)

				// Протокол upgrade: тело ответа писать нельзя
				if r.Header.Get("Connection") == "Upgrade" {
					return
				}
				apierrors.InternalError(w, "Внутренняя ошибка сервера")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
