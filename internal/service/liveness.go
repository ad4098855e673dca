// liveness.go — протокол heartbeat поверх каталога (Liveness Tracker).
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var heartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cat_heartbeats_total",
	Help: "Количество heartbeat (alive — продлено хотя бы одно объявление, empty — ни одного).",
}, []string{"result"})

// PeerRenewer — продление всех объявлений пира. Реализуется CatalogService.
type PeerRenewer interface {
	RenewAllForPeer(ctx context.Context, peerID string) int64
}

// LivenessService интерпретирует heartbeat как продление всех объявлений пира.
type LivenessService struct {
	store     PeerRenewer
	threshold time.Duration
	logger    *slog.Logger
}

// NewLivenessService создаёт сервис heartbeat.
// threshold — порог устаревания, тот же, что использует reaper.
func NewLivenessService(store PeerRenewer, threshold time.Duration, logger *slog.Logger) *LivenessService {
	return &LivenessService{
		store:     store,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "liveness")),
	}
}

// Heartbeat продлевает все объявления peerID.
// false означает, что у пира сейчас нет ни одного объявления: он ничего не
// публиковал, либо всё снято или удалено reaper. Пир должен опубликовать
// файлы заново.
func (s *LivenessService) Heartbeat(ctx context.Context, peerID string) bool {
	renewed := s.store.RenewAllForPeer(ctx, peerID)
	if renewed == 0 {
		heartbeatsTotal.WithLabelValues("empty").Inc()
		s.logger.Info("Heartbeat без объявлений", slog.String("peer_id", peerID))
		return false
	}

	heartbeatsTotal.WithLabelValues("alive").Inc()
	s.logger.Debug("Heartbeat принят",
		slog.String("peer_id", peerID),
		slog.Int64("renewed", renewed),
	)
	return true
}

// StalenessThreshold возвращает порог устаревания.
// Интервал heartbeat клиента должен быть заметно меньше.
func (s *LivenessService) StalenessThreshold() time.Duration {
	return s.threshold
}
