// reaper.go — фоновая очистка устаревших объявлений (Reaper).
//
// Reaper периодически удаляет объявления, владельцы которых перестали
// присылать heartbeat дольше порога устаревания. Кроме PurgeOlderThan ничего
// не вызывает. Запускается как горутина с периодическим тикером
// (CAT_REAP_INTERVAL), период не зависит от порога.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики reaper
var (
	// reaperRunsTotal — количество запусков reaper.
	reaperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cat_reaper_runs_total",
		Help: "Общее количество запусков reaper",
	})

	// reaperPurgedTotal — количество удалённых устаревших объявлений.
	reaperPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cat_reaper_purged_total",
		Help: "Общее количество объявлений, удалённых reaper",
	})

	// reaperDurationSeconds — длительность одного прохода.
	reaperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cat_reaper_duration_seconds",
		Help:    "Длительность прохода reaper в секундах",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Purger — массовое удаление устаревших объявлений. Реализуется CatalogService.
type Purger interface {
	PurgeOlderThan(ctx context.Context, threshold time.Duration) int64
}

// SweepResult — результат одного прохода reaper.
type SweepResult struct {
	// Purged — количество удалённых объявлений
	Purged int64
	// Duration — длительность прохода
	Duration time.Duration
}

// ReaperService — периодический сборщик устаревших объявлений.
// Несколько экземпляров в кластере допустимы: удаление — один атомарный DELETE.
type ReaperService struct {
	purger    Purger
	threshold time.Duration
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewReaperService создаёт reaper.
// threshold — порог устаревания, interval — период запуска.
func NewReaperService(
	purger Purger,
	threshold time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *ReaperService {
	return &ReaperService{
		purger:    purger,
		threshold: threshold,
		interval:  interval,
		logger:    logger.With(slog.String("component", "reaper")),
	}
}

// Start запускает фоновую горутину reaper с периодическим тикером.
// Вызывается один раз, после проверки схемы БД.
func (r *ReaperService) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(loopCtx)

	r.logger.Info("Reaper запущен",
		slog.String("interval", r.interval.String()),
		slog.String("threshold", r.threshold.String()),
	)
}

// Stop останавливает reaper и дожидается завершения текущего прохода.
func (r *ReaperService) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("Reaper остановлен")
}

// run — основной цикл фоновой горутины.
func (r *ReaperService) run(ctx context.Context) {
	defer r.wg.Done()

	// Первый проход — сразу после старта
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход reaper.
// Отмена ctx не прерывает уже начатый DELETE: проход доводится до конца,
// время ограничено таймаутом операции каталога.
func (r *ReaperService) RunOnce(ctx context.Context) *SweepResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()

	purged := r.purger.PurgeOlderThan(context.WithoutCancel(ctx), r.threshold)

	result := &SweepResult{
		Purged:   purged,
		Duration: time.Since(start),
	}

	reaperRunsTotal.Inc()
	reaperPurgedTotal.Add(float64(purged))
	reaperDurationSeconds.Observe(result.Duration.Seconds())

	level := slog.LevelDebug
	if purged > 0 {
		level = slog.LevelInfo
	}
	r.logger.LogAttrs(ctx, level, "Проход reaper завершён",
		slog.Int64("purged", result.Purged),
		slog.Duration("duration", result.Duration),
	)

	return result
}
