package catalogclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockCatalog создаёт mock HTTP-сервер каталога.
func setupMockCatalog(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// fastOptions — короткие задержки повторов для тестов.
var fastOptions = Options{Attempts: 3, RetryDelay: time.Millisecond}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewPeerID(t *testing.T) {
	a, b := NewPeerID(), NewPeerID()
	if a == b {
		t.Error("два вызова NewPeerID вернули одинаковый id")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("NewPeerID() = %q, не UUID: %v", a, err)
	}
}

// TestClient_ListFile проверяет метод, путь и тело запроса.
func TestClient_ListFile(t *testing.T) {
	server := setupMockCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/files" {
			t.Errorf("запрос %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["peer_id"] != "p1" || body["file_name"] != "movie.mp4" ||
			body["owner_host"] != "10.0.0.5" || body["owner_port"] != float64(6000) {
			t.Errorf("тело = %v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	client := New(server.URL, fastOptions, testLogger())
	if err := client.ListFile(context.Background(), "p1", "movie.mp4", "10.0.0.5", 6000); err != nil {
		t.Fatalf("ListFile() ошибка: %v", err)
	}
}

// TestClient_ListFile_ValidationError — 4xx не повторяется и возвращает StatusError.
func TestClient_ListFile_ValidationError(t *testing.T) {
	var calls atomic.Int32
	server := setupMockCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{"code": "VALIDATION_ERROR", "message": "owner_port"},
		})
	})

	client := New(server.URL, fastOptions, testLogger())
	err := client.ListFile(context.Background(), "p1", "a", "h", 0)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("ожидался StatusError, получено %v", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest || statusErr.Code != "VALIDATION_ERROR" {
		t.Errorf("StatusError = %+v", statusErr)
	}
	if calls.Load() != 1 {
		t.Errorf("запросов = %d, ожидался 1", calls.Load())
	}
}

// TestClient_Retry — 5xx повторяется до успеха.
func TestClient_Retry(t *testing.T) {
	var calls atomic.Int32
	server := setupMockCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"ttl_seconds": 30})
	})

	client := New(server.URL, fastOptions, testLogger())
	ttl, err := client.GetTTL(context.Background())
	if err != nil {
		t.Fatalf("GetTTL() ошибка: %v", err)
	}
	if ttl != 30*time.Second {
		t.Errorf("ttl = %v, ожидалось 30s", ttl)
	}
	if calls.Load() != 3 {
		t.Errorf("запросов = %d, ожидалось 3", calls.Load())
	}
}

// TestClient_RetryExhausted — после исчерпания попыток возвращается последняя ошибка.
func TestClient_RetryExhausted(t *testing.T) {
	var calls atomic.Int32
	server := setupMockCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	client := New(server.URL, fastOptions, testLogger())
	err := client.Disconnect(context.Background(), "p1")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("ожидался StatusError 502, получено %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("запросов = %d, ожидалось 3", calls.Load())
	}
}

func TestClient_SearchFiles(t *testing.T) {
	server := setupMockCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/files" || r.URL.Query().Get("query") != "my movie" {
			t.Errorf("запрос %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{"id": 1, "file_name": "my movie.mp4"}},
		})
	})

	client := New(server.URL, fastOptions, testLogger())
	refs, err := client.SearchFiles(context.Background(), "my movie")
	if err != nil {
		t.Fatalf("SearchFiles() ошибка: %v", err)
	}
	if len(refs) != 1 || refs[0] != (model.FileRef{ID: 1, FileName: "my movie.mp4"}) {
		t.Errorf("refs = %+v", refs)
	}
}

// TestClient_GetFileOwner проверяет найденный адрес, кэш и отсутствие.
func TestClient_GetFileOwner(t *testing.T) {
	var calls atomic.Int32
	server := setupMockCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/api/v1/files/1":
			writeJSON(w, http.StatusOK, map[string]any{
				"id": 1, "file_name": "movie.mp4", "owner_host": "10.0.0.5", "owner_port": 6000,
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]string{"code": "NOT_FOUND", "message": "Файл не найден"},
			})
		}
	})

	client := New(server.URL, fastOptions, testLogger())
	ctx := context.Background()

	want := model.FileOwner{ID: 1, FileName: "movie.mp4", Owner: model.OwnerAddress{Host: "10.0.0.5", Port: 6000}}
	for range 2 {
		owner, ok, err := client.GetFileOwner(ctx, 1)
		if err != nil || !ok {
			t.Fatalf("GetFileOwner(1) = %v, %v", ok, err)
		}
		if owner != want {
			t.Errorf("owner = %+v, ожидался %+v", owner, want)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("запросов = %d, ожидался 1 (второй ответ из кэша)", calls.Load())
	}

	_, ok, err := client.GetFileOwner(ctx, 2)
	if err != nil {
		t.Fatalf("GetFileOwner(2) ошибка: %v", err)
	}
	if ok {
		t.Error("GetFileOwner(2) ok = true, ожидался false")
	}
}

// TestClient_GetFileOwner_CacheDisabled — при OwnerCacheSize<0 каждый вызов идёт в сеть.
func TestClient_GetFileOwner_CacheDisabled(t *testing.T) {
	var calls atomic.Int32
	server := setupMockCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "file_name": "a", "owner_host": "h", "owner_port": 1})
	})

	client := New(server.URL, Options{OwnerCacheSize: -1}, testLogger())
	for range 2 {
		if _, _, err := client.GetFileOwner(context.Background(), 1); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("запросов = %d, ожидалось 2", calls.Load())
	}
}

func TestClient_KeepAlive(t *testing.T) {
	server := setupMockCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("метод = %s", r.Method)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"alive": r.URL.Path == "/api/v1/peers/p1/heartbeat"})
	})

	client := New(server.URL, fastOptions, testLogger())

	alive, err := client.KeepAlive(context.Background(), "p1")
	if err != nil || !alive {
		t.Errorf("KeepAlive(p1) = %v, %v", alive, err)
	}
	alive, err = client.KeepAlive(context.Background(), "p2")
	if err != nil || alive {
		t.Errorf("KeepAlive(p2) = %v, %v", alive, err)
	}
}

// --- Heartbeater ---

// fakeCatalog — минимальный in-memory каталог для тестов Heartbeater.
type fakeCatalog struct {
	mu           sync.Mutex
	listed       map[string]bool
	listCalls    int
	disconnected bool
}

func (f *fakeCatalog) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/ttl":
			writeJSON(w, http.StatusOK, map[string]int{"ttl_seconds": 30})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/files":
			var body struct {
				FileName string `json:"file_name"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.listed[body.FileName] = true
			f.listCalls++
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/peers/p1/heartbeat":
			writeJSON(w, http.StatusOK, map[string]bool{"alive": len(f.listed) > 0})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/peers/p1":
			f.listed = map[string]bool{}
			f.disconnected = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("неожиданный запрос %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

// TestHeartbeater_Beat — при alive=false файлы публикуются заново.
func TestHeartbeater_Beat(t *testing.T) {
	fake := &fakeCatalog{listed: map[string]bool{}}
	server := setupMockCatalog(t, fake.handler(t))

	client := New(server.URL, fastOptions, testLogger())
	files := func() []string { return []string{"a.txt", "b.txt"} }
	hb := NewHeartbeater(client, "p1", model.OwnerAddress{Host: "10.0.0.5", Port: 6000}, files, testLogger())

	// Каталог пуст — heartbeat возвращает false, файлы публикуются
	hb.Beat(context.Background())

	fake.mu.Lock()
	if fake.listCalls != 2 || !fake.listed["a.txt"] || !fake.listed["b.txt"] {
		t.Errorf("после Beat: listCalls=%d listed=%v", fake.listCalls, fake.listed)
	}
	fake.mu.Unlock()

	// Каталог знает пира — повторной публикации нет
	hb.Beat(context.Background())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.listCalls != 2 {
		t.Errorf("listCalls = %d, ожидалось 2", fake.listCalls)
	}
}

// TestHeartbeater_Run — публикация при старте, Disconnect при остановке.
func TestHeartbeater_Run(t *testing.T) {
	fake := &fakeCatalog{listed: map[string]bool{}}
	server := setupMockCatalog(t, fake.handler(t))

	client := New(server.URL, fastOptions, testLogger())
	hb := NewHeartbeater(client, "p1", model.OwnerAddress{Host: "h", Port: 1},
		func() []string { return []string{"a.txt"} }, testLogger())
	hb.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hb.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fake.mu.Lock()
		listed := fake.listed["a.txt"]
		fake.mu.Unlock()
		if listed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() ошибка: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() не завершился после отмены")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !fake.disconnected {
		t.Error("Disconnect не вызван при остановке")
	}
}

// TestHeartbeater_ResolveInterval — период равен трети TTL.
func TestHeartbeater_ResolveInterval(t *testing.T) {
	fake := &fakeCatalog{listed: map[string]bool{}}
	server := setupMockCatalog(t, fake.handler(t))

	hb := NewHeartbeater(New(server.URL, fastOptions, testLogger()), "p1", model.OwnerAddress{}, nil, testLogger())

	interval, err := hb.resolveInterval(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if interval != 10*time.Second {
		t.Errorf("interval = %v, ожидалось 10s", interval)
	}
}
