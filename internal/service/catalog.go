// catalog.go — сервис каталога объявлений (Catalog Store).
// Поверх repository применяет политику ошибок: сбой хранилища не доходит
// до вызывающего, операция возвращает нейтральный результат (пустой поиск,
// отсутствие, 0, no-op), а ошибка пишется в лог и метрику.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
	"github.com/bigkaa/fileshare-catalog/internal/repository"
)

// Prometheus-метрики каталога.
var (
	listingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cat_listings_total",
		Help: "Количество операций list (created — новое объявление, renewed — продление).",
	}, []string{"result"})

	searchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cat_search_total",
		Help: "Общее количество поисковых запросов.",
	})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cat_search_duration_seconds",
		Help:    "Длительность поисковых запросов.",
		Buckets: prometheus.DefBuckets,
	})

	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cat_resolve_total",
		Help: "Количество запросов владельца файла (found, absent).",
	}, []string{"result"})

	delistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cat_delist_total",
		Help: "Количество операций delist (deleted, noop).",
	}, []string{"result"})

	disconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cat_disconnects_total",
		Help: "Количество операций disconnect.",
	})

	storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cat_store_errors_total",
		Help: "Ошибки хранилища, скрытые от вызывающего (по операции).",
	}, []string{"operation"})
)

// CatalogService — единственная точка доступа к набору объявлений.
// Каждая операция — один SQL-оператор, блокировок на уровне приложения нет.
type CatalogService struct {
	repo    repository.AdvertisementRepository
	grace   time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewCatalogService создаёт сервис каталога.
// grace — запас, добавляемый к порогу устаревания в PurgeOlderThan.
// timeout — ограничение времени одной операции с хранилищем.
func NewCatalogService(
	repo repository.AdvertisementRepository,
	grace time.Duration,
	timeout time.Duration,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		repo:    repo,
		grace:   grace,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "catalog_service")),
	}
}

// Advertise публикует файл или продлевает существующее объявление
// с тем же (fileName, owner). Ошибки хранилища только логируются.
func (s *CatalogService) Advertise(ctx context.Context, peerID, fileName string, owner model.OwnerAddress) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.repo.Upsert(ctx, peerID, fileName, owner)
	if err != nil {
		s.storeError("advertise", err, slog.String("file_name", fileName), slog.String("owner", owner.String()))
		return
	}

	result := "renewed"
	if res.Inserted {
		result = "created"
	}
	listingsTotal.WithLabelValues(result).Inc()

	s.logger.Info("Объявление обновлено",
		slog.Int64("id", res.ID),
		slog.String("file_name", fileName),
		slog.String("owner", owner.String()),
		slog.String("result", result),
	)
}

// Search возвращает объявления, имя которых содержит query (без учёта регистра).
// Адрес владельца в результат не входит. При ошибке — пустой срез.
func (s *CatalogService) Search(ctx context.Context, query string) []model.FileRef {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	start := time.Now()
	searchTotal.Inc()

	refs, err := s.repo.Search(ctx, query)
	if err != nil {
		s.storeError("search", err, slog.String("query", query))
		return []model.FileRef{}
	}

	duration := time.Since(start)
	searchDuration.Observe(duration.Seconds())

	s.logger.Debug("Поиск выполнен",
		slog.String("query", query),
		slog.Int("found", len(refs)),
		slog.Duration("duration", duration),
	)

	return refs
}

// Resolve возвращает адрес владельца объявления.
// ok = false, если объявления нет или хранилище недоступно.
func (s *CatalogService) Resolve(ctx context.Context, id int64) (owner model.FileOwner, ok bool) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ad, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			resolveTotal.WithLabelValues("absent").Inc()
			return model.FileOwner{}, false
		}
		s.storeError("resolve", err, slog.Int64("id", id))
		return model.FileOwner{}, false
	}

	resolveTotal.WithLabelValues("found").Inc()
	return ad.OwnerInfo(), true
}

// Delist удаляет объявление fileName, если его владелец — peerID.
// Отсутствие файла и чужое владение неразличимы: в обоих случаях no-op.
func (s *CatalogService) Delist(ctx context.Context, fileName, peerID string) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.repo.DeleteOwned(ctx, fileName, peerID)
	if err != nil {
		s.storeError("delist", err, slog.String("file_name", fileName))
		return
	}

	if n == 0 {
		delistTotal.WithLabelValues("noop").Inc()
		s.logger.Info("Delist без эффекта: файл не найден или пир не владелец",
			slog.String("file_name", fileName),
			slog.String("peer_id", peerID),
		)
		return
	}

	delistTotal.WithLabelValues("deleted").Inc()
	s.logger.Info("Объявление снято",
		slog.String("file_name", fileName),
		slog.Int64("rows", n),
	)
}

// RenewAllForPeer продлевает все объявления пира одним UPDATE.
// Возвращает количество продлённых объявлений (0 при ошибке хранилища).
func (s *CatalogService) RenewAllForPeer(ctx context.Context, peerID string) int64 {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.repo.TouchByPeer(ctx, peerID)
	if err != nil {
		s.storeError("renew", err, slog.String("peer_id", peerID))
		return 0
	}
	return n
}

// DeleteAllForPeer удаляет все объявления пира. Повторный вызов — no-op.
func (s *CatalogService) DeleteAllForPeer(ctx context.Context, peerID string) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.repo.DeleteByPeer(ctx, peerID)
	if err != nil {
		s.storeError("disconnect", err, slog.String("peer_id", peerID))
		return
	}

	disconnectsTotal.Inc()
	s.logger.Info("Пир отключён",
		slog.String("peer_id", peerID),
		slog.Int64("removed", n),
	)
}

// PurgeOlderThan одним DELETE удаляет объявления, не продлевавшиеся дольше
// threshold + grace. Возвращает количество удалённых (0 при ошибке).
func (s *CatalogService) PurgeOlderThan(ctx context.Context, threshold time.Duration) int64 {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	maxAge := threshold + s.grace
	n, err := s.repo.DeleteOlderThan(ctx, maxAge)
	if err != nil {
		s.storeError("purge", err, slog.Duration("max_age", maxAge))
		return 0
	}
	return n
}

// opContext ограничивает время операции с хранилищем.
func (s *CatalogService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// storeError фиксирует скрытую от вызывающего ошибку хранилища.
func (s *CatalogService) storeError(operation string, err error, attrs ...slog.Attr) {
	storeErrorsTotal.WithLabelValues(operation).Inc()

	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("operation", operation), slog.String("error", err.Error()))
	for _, a := range attrs {
		args = append(args, a)
	}
	s.logger.Error("Ошибка хранилища каталога", args...)
}
