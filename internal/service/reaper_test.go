package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockPurger — мок Purger, считающий вызовы.
type mockPurger struct {
	calls     atomic.Int64
	purged    int64
	threshold atomic.Int64
	// block — если задан, PurgeOlderThan ждёт закрытия канала
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (m *mockPurger) PurgeOlderThan(_ context.Context, threshold time.Duration) int64 {
	m.calls.Add(1)
	m.threshold.Store(int64(threshold))
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.block != nil {
		<-m.block
	}
	return m.purged
}

func TestReaperService_RunOnce(t *testing.T) {
	purger := &mockPurger{purged: 4}
	r := NewReaperService(purger, 30*time.Second, time.Minute, testLogger())

	result := r.RunOnce(context.Background())

	if result.Purged != 4 {
		t.Errorf("Purged = %d, ожидалось 4", result.Purged)
	}
	if purger.calls.Load() != 1 {
		t.Errorf("PurgeOlderThan вызван %d раз, ожидался 1", purger.calls.Load())
	}
	if got := time.Duration(purger.threshold.Load()); got != 30*time.Second {
		t.Errorf("threshold = %v, ожидалось 30s", got)
	}
}

// TestReaperService_RunOnce_CancelledContext — отменённый контекст не мешает проходу.
func TestReaperService_RunOnce_CancelledContext(t *testing.T) {
	purger := &mockPurger{purged: 1}
	r := NewReaperService(purger, 30*time.Second, time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if result := r.RunOnce(ctx); result.Purged != 1 {
		t.Errorf("Purged = %d, ожидалось 1", result.Purged)
	}
}

// TestReaperService_StartStop — первый проход сразу после старта,
// далее по тикеру.
func TestReaperService_StartStop(t *testing.T) {
	purger := &mockPurger{}
	r := NewReaperService(purger, 30*time.Second, 20*time.Millisecond, testLogger())

	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for purger.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()

	if purger.calls.Load() < 3 {
		t.Fatalf("reaper выполнил %d проходов, ожидалось ≥3", purger.calls.Load())
	}

	// После Stop новых проходов нет
	after := purger.calls.Load()
	time.Sleep(60 * time.Millisecond)
	if purger.calls.Load() != after {
		t.Error("reaper продолжил работу после Stop")
	}
}

// TestReaperService_StopWaitsForSweep — Stop дожидается завершения текущего прохода.
func TestReaperService_StopWaitsForSweep(t *testing.T) {
	purger := &mockPurger{
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	r := NewReaperService(purger, 30*time.Second, time.Hour, testLogger())

	r.Start(context.Background())

	select {
	case <-purger.started:
	case <-time.After(2 * time.Second):
		t.Fatal("первый проход не начался")
	}

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop вернулся до завершения прохода")
	case <-time.After(50 * time.Millisecond):
	}

	close(purger.block)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop не вернулся после завершения прохода")
	}
}

// TestReaperService_StopWithoutStart — Stop без Start не блокируется.
func TestReaperService_StopWithoutStart(t *testing.T) {
	r := NewReaperService(&mockPurger{}, time.Second, time.Second, testLogger())
	r.Stop()
}
