package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/fileshare-catalog/internal/api/handlers"
	"github.com/bigkaa/fileshare-catalog/internal/api/middleware"
	"github.com/bigkaa/fileshare-catalog/internal/api/openapi"
	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
)

// recordingCatalog запоминает имя последней вызванной операции.
type recordingCatalog struct {
	last string
}

func (c *recordingCatalog) ListFile(context.Context, string, string, string, int) {
	c.last = "listFile"
}

func (c *recordingCatalog) DelistFile(context.Context, string, string) {
	c.last = "delistFile"
}

func (c *recordingCatalog) SearchFiles(context.Context, string) []model.FileRef {
	c.last = "searchFiles"
	return nil
}

func (c *recordingCatalog) GetFileOwner(_ context.Context, id int64) (model.FileOwner, bool) {
	c.last = "getFileOwner"
	return model.FileOwner{ID: id, FileName: "a", Owner: model.OwnerAddress{Host: "h", Port: 1}}, true
}

func (c *recordingCatalog) KeepAlive(context.Context, string) bool {
	c.last = "keepAlive"
	return true
}

func (c *recordingCatalog) Disconnect(context.Context, string) {
	c.last = "disconnect"
}

func (c *recordingCatalog) GetTTL() int {
	c.last = "getTTL"
	return 30
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cat handlers.Catalog) *httptest.Server {
	t.Helper()

	validator, err := openapi.NewValidator(testLogger())
	if err != nil {
		t.Fatalf("NewValidator() ошибка: %v", err)
	}

	h := handlers.NewAPIHandler(cat, handlers.NewHealthHandler(nil, nil), testLogger())
	srv := httptest.NewServer(NewRouter(h, testLogger(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(testLogger()),
		validator.Middleware(),
	))
	t.Cleanup(srv.Close)
	return srv
}

// TestRouter_Routes проверяет маршрутизацию всех операций каталога.
func TestRouter_Routes(t *testing.T) {
	cat := &recordingCatalog{}
	srv := newTestServer(t, cat)

	tests := []struct {
		method     string
		path       string
		body       string
		wantOp     string
		wantStatus int
	}{
		{http.MethodPost, "/api/v1/files", `{"peer_id":"p1","file_name":"a","owner_host":"h","owner_port":1}`, "listFile", http.StatusNoContent},
		{http.MethodPost, "/api/v1/files/delist", `{"file_name":"a","peer_id":"p1"}`, "delistFile", http.StatusNoContent},
		{http.MethodGet, "/api/v1/files?query=a", "", "searchFiles", http.StatusOK},
		{http.MethodGet, "/api/v1/files/5", "", "getFileOwner", http.StatusOK},
		{http.MethodGet, "/api/v1/ttl", "", "getTTL", http.StatusOK},
		{http.MethodPost, "/api/v1/peers/p1/heartbeat", "", "keepAlive", http.StatusOK},
		{http.MethodDelete, "/api/v1/peers/p1", "", "disconnect", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.wantOp, func(t *testing.T) {
			cat.last = ""

			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req, err := http.NewRequestWithContext(context.Background(), tt.method, srv.URL+tt.path, body)
			if err != nil {
				t.Fatal(err)
			}
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := srv.Client().Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d", resp.StatusCode, tt.wantStatus)
			}
			if cat.last != tt.wantOp {
				t.Errorf("вызвана операция %q, ожидалась %q", cat.last, tt.wantOp)
			}
		})
	}
}

// TestRouter_Errors проверяет 400/404/405 в едином JSON-формате.
func TestRouter_Errors(t *testing.T) {
	cat := &recordingCatalog{}
	srv := newTestServer(t, cat)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"неизвестный путь", http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
		{"неверный метод", http.MethodPut, "/api/v1/ttl", "", http.StatusMethodNotAllowed},
		{"порт вне диапазона", http.MethodPost, "/api/v1/files", `{"peer_id":"p1","file_name":"a","owner_host":"h","owner_port":0}`, http.StatusBadRequest},
		{"file_id не число", http.MethodGet, "/api/v1/files/x", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat.last = ""

			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req, err := http.NewRequestWithContext(context.Background(), tt.method, srv.URL+tt.path, body)
			if err != nil {
				t.Fatal(err)
			}
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := srv.Client().Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d", resp.StatusCode, tt.wantStatus)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if cat.last != "" {
				t.Errorf("запрос дошёл до каталога: %s", cat.last)
			}
		})
	}
}

// TestRouter_Health — служебные endpoints доступны без валидации.
func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t, &recordingCatalog{})

	for _, path := range []string{"/health/live", "/metrics"} {
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: статус = %d, ожидался 200", path, resp.StatusCode)
		}
	}
}

// panickingCatalog паникует на getTTL.
type panickingCatalog struct {
	recordingCatalog
}

func (c *panickingCatalog) GetTTL() int {
	panic("ttl unavailable")
}

// TestRouter_PanicReturnsJSON — паника обработчика даёт 500 в формате ошибок API.
func TestRouter_PanicReturnsJSON(t *testing.T) {
	srv := newTestServer(t, &panickingCatalog{})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/ttl")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("статус = %d, ожидался 500", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"code":"INTERNAL_ERROR"`) {
		t.Errorf("тело ответа = %s", body)
	}
}
