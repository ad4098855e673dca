// Пакет catalogclient — HTTP-клиент каталога файлов для пиров.
// Покрывает все операции каталога, повторяет запросы при временных сбоях
// (retry-go) и кратковременно кэширует адреса владельцев (expirable LRU).
package catalogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
)

// Options — параметры клиента. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	// Timeout — таймаут одного HTTP-запроса (по умолчанию 10s)
	Timeout time.Duration
	// Attempts — число попыток с учётом первой (по умолчанию 3)
	Attempts uint
	// RetryDelay — начальная задержка между попытками, далее экспоненциально (по умолчанию 200ms)
	RetryDelay time.Duration
	// OwnerCacheSize — размер кэша адресов владельцев (по умолчанию 1000, <0 — кэш отключён)
	OwnerCacheSize int
	// OwnerCacheTTL — время жизни записи кэша (по умолчанию 5s)
	OwnerCacheTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Attempts == 0 {
		o.Attempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
	if o.OwnerCacheSize == 0 {
		o.OwnerCacheSize = 1000
	}
	if o.OwnerCacheTTL <= 0 {
		o.OwnerCacheTTL = 5 * time.Second
	}
	return o
}

// StatusError — ответ каталога с кодом, отличным от ожидаемого.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("каталог вернул статус %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("каталог вернул статус %d", e.StatusCode)
}

// Client — HTTP-клиент каталога.
type Client struct {
	httpClient *http.Client
	baseURL    string
	attempts   uint
	retryDelay time.Duration
	owners     *expirable.LRU[int64, model.FileOwner]
	logger     *slog.Logger
}

// New создаёт клиент каталога.
// baseURL — адрес сервиса (например, http://catalog:8040).
func New(baseURL string, opts Options, logger *slog.Logger) *Client {
	opts = opts.withDefaults()

	c := &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		logger:     logger.With(slog.String("component", "catalog_client")),
	}
	if opts.OwnerCacheSize > 0 {
		c.owners = expirable.NewLRU[int64, model.FileOwner](opts.OwnerCacheSize, nil, opts.OwnerCacheTTL)
	}
	return c
}

// NewPeerID генерирует идентификатор пира (UUID v4).
func NewPeerID() string {
	return uuid.NewString()
}

// --- Операции каталога ---

// ListFile публикует или продлевает объявление файла.
func (c *Client) ListFile(ctx context.Context, peerID, fileName, ownerHost string, ownerPort int) error {
	body := map[string]any{
		"peer_id":    peerID,
		"file_name":  fileName,
		"owner_host": ownerHost,
		"owner_port": ownerPort,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/files", body, http.StatusNoContent, nil)
}

// DelistFile снимает объявление. Отсутствие объявления ошибкой не считается.
func (c *Client) DelistFile(ctx context.Context, fileName, peerID string) error {
	body := map[string]string{
		"file_name": fileName,
		"peer_id":   peerID,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/files/delist", body, http.StatusNoContent, nil)
}

// SearchFiles ищет файлы по подстроке имени. Адреса владельцев не возвращаются.
func (c *Client) SearchFiles(ctx context.Context, query string) ([]model.FileRef, error) {
	var resp struct {
		Items []struct {
			ID       int64  `json:"id"`
			FileName string `json:"file_name"`
		} `json:"items"`
	}

	path := "/api/v1/files?" + url.Values{"query": {query}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}

	refs := make([]model.FileRef, 0, len(resp.Items))
	for _, item := range resp.Items {
		refs = append(refs, model.FileRef{ID: item.ID, FileName: item.FileName})
	}
	return refs, nil
}

// GetFileOwner возвращает адрес владельца. ok=false — объявление отсутствует.
// Найденные адреса кэшируются на OwnerCacheTTL, отсутствие не кэшируется.
func (c *Client) GetFileOwner(ctx context.Context, id int64) (owner model.FileOwner, ok bool, err error) {
	if c.owners != nil {
		if cached, hit := c.owners.Get(id); hit {
			return cached, true, nil
		}
	}

	var resp struct {
		ID        int64  `json:"id"`
		FileName  string `json:"file_name"`
		OwnerHost string `json:"owner_host"`
		OwnerPort int    `json:"owner_port"`
	}

	err = c.do(ctx, http.MethodGet, "/api/v1/files/"+strconv.FormatInt(id, 10), nil, http.StatusOK, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return model.FileOwner{}, false, nil
		}
		return model.FileOwner{}, false, err
	}

	owner = model.FileOwner{
		ID:       resp.ID,
		FileName: resp.FileName,
		Owner:    model.OwnerAddress{Host: resp.OwnerHost, Port: resp.OwnerPort},
	}
	if c.owners != nil {
		c.owners.Add(id, owner)
	}
	return owner, true, nil
}

// KeepAlive отправляет heartbeat. false — у каталога нет объявлений пира.
func (c *Client) KeepAlive(ctx context.Context, peerID string) (bool, error) {
	var resp struct {
		Alive bool `json:"alive"`
	}
	path := "/api/v1/peers/" + url.PathEscape(peerID) + "/heartbeat"
	if err := c.do(ctx, http.MethodPost, path, nil, http.StatusOK, &resp); err != nil {
		return false, err
	}
	return resp.Alive, nil
}

// Disconnect удаляет все объявления пира.
func (c *Client) Disconnect(ctx context.Context, peerID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/peers/"+url.PathEscape(peerID), nil, http.StatusNoContent, nil)
}

// GetTTL возвращает порог устаревания каталога.
func (c *Client) GetTTL(ctx context.Context) (time.Duration, error) {
	var resp struct {
		TTLSeconds int `json:"ttl_seconds"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/ttl", nil, http.StatusOK, &resp); err != nil {
		return 0, err
	}
	return time.Duration(resp.TTLSeconds) * time.Second, nil
}

// --- Транспорт ---

// do выполняет запрос с повторами. Повторяются сетевые ошибки и ответы 5xx;
// 4xx возвращается сразу.
func (c *Client) do(ctx context.Context, method, path string, in any, wantStatus int, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("сериализация запроса %s %s: %w", method, path, err)
		}
	}

	return retry.Do(
		func() error {
			return c.doOnce(ctx, method, path, payload, wantStatus, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("Повтор запроса к каталогу",
				slog.String("method", method),
				slog.String("path", path),
				slog.Uint64("attempt", uint64(n)+1),
				slog.String("error", err.Error()),
			)
		}),
	)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, wantStatus int, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("создание запроса %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("запрос %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return decodeStatusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("декодирование ответа %s %s: %w", method, path, err)
	}
	return nil
}

// decodeStatusError разбирает тело ошибки {"error":{"code","message"}}, если оно есть.
func decodeStatusError(resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		statusErr.Code = body.Error.Code
		statusErr.Message = body.Error.Message
	}
	return statusErr
}

// isRetryable — повторять ли запрос после ошибки.
// Отмена контекста вызывающего обрабатывается retry.Context.
func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
