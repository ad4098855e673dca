// heartbeater.go — сессия пира в каталоге: публикация файлов, периодический
// heartbeat и повторная публикация, когда каталог забыл пира.
package catalogclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
)

// minHeartbeatInterval — нижняя граница периода heartbeat.
const minHeartbeatInterval = time.Second

// FileLister — источник списка файлов, которые пир раздаёт в данный момент.
type FileLister func() []string

// Heartbeater поддерживает объявления пира в каталоге.
// Период heartbeat — треть порога устаревания, полученного через GetTTL.
type Heartbeater struct {
	client *Client
	peerID string
	owner  model.OwnerAddress
	files  FileLister
	logger *slog.Logger

	// interval — фиксированный период; 0 — вычисляется из TTL
	interval time.Duration
}

// NewHeartbeater создаёт сессию пира.
func NewHeartbeater(client *Client, peerID string, owner model.OwnerAddress, files FileLister, logger *slog.Logger) *Heartbeater {
	return &Heartbeater{
		client: client,
		peerID: peerID,
		owner:  owner,
		files:  files,
		logger: logger.With(
			slog.String("component", "heartbeater"),
			slog.String("peer_id", peerID),
		),
	}
}

// Run публикует файлы и отправляет heartbeat до отмены ctx.
// При отмене выполняет Disconnect, чтобы объявления исчезли сразу, без ожидания reaper.
func (h *Heartbeater) Run(ctx context.Context) error {
	interval, err := h.resolveInterval(ctx)
	if err != nil {
		return err
	}

	h.publishAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.logger.Info("Heartbeat запущен", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			h.disconnect()
			return nil
		case <-ticker.C:
			h.Beat(ctx)
		}
	}
}

// Beat — один heartbeat. alive=false означает, что объявлений пира
// в каталоге нет (например, после очистки reaper), и файлы публикуются заново.
func (h *Heartbeater) Beat(ctx context.Context) {
	alive, err := h.client.KeepAlive(ctx, h.peerID)
	if err != nil {
		h.logger.Warn("Ошибка heartbeat", slog.String("error", err.Error()))
		return
	}
	if alive {
		return
	}

	h.logger.Info("Каталог не знает пира, повторная публикация файлов")
	h.publishAll(ctx)
}

func (h *Heartbeater) resolveInterval(ctx context.Context) (time.Duration, error) {
	if h.interval > 0 {
		return h.interval, nil
	}

	ttl, err := h.client.GetTTL(ctx)
	if err != nil {
		return 0, err
	}
	return max(ttl/3, minHeartbeatInterval), nil
}

// publishAll публикует все текущие файлы пира. Ошибки по отдельным файлам
// логируются, публикация остальных продолжается.
func (h *Heartbeater) publishAll(ctx context.Context) {
	for _, name := range h.files() {
		if err := h.client.ListFile(ctx, h.peerID, name, h.owner.Host, h.owner.Port); err != nil {
			h.logger.Warn("Ошибка публикации файла",
				slog.String("file_name", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (h *Heartbeater) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.client.Disconnect(ctx, h.peerID); err != nil {
		h.logger.Warn("Ошибка отключения от каталога", slog.String("error", err.Error()))
		return
	}
	h.logger.Info("Пир отключён от каталога")
}
