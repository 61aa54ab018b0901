package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// blockingRunner は指定チャネルが閉じられるまでRunOnceをブロックするRunner。
type blockingRunner struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (r *blockingRunner) RunOnce(ctx context.Context) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *blockingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// mockLease はテスト用のLeaseモック。
type mockLease struct {
	acquireFn func(ctx context.Context) (bool, error)
	released  bool
}

func (l *mockLease) Acquire(ctx context.Context) (bool, error) {
	if l.acquireFn != nil {
		return l.acquireFn(ctx)
	}
	return true, nil
}

func (l *mockLease) Release(ctx context.Context) error {
	l.released = true
	return nil
}

// TestScheduler_RunGuarded_SingleFlight は前回のサイクルが実行中の場合に
// 次のティックがスキップされる（キューイングされない）ことをテストする。
func TestScheduler_RunGuarded_SingleFlight(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	s := NewScheduler(runner, nil, testLogger(), time.Minute, time.Minute)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runGuarded(context.Background())
	}()

	// 1回目のサイクルがRunOnceに入るまで待つ
	for i := 0; i < 100; i++ {
		if runner.callCount() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if runner.callCount() != 1 {
		t.Fatal("first cycle did not start")
	}

	// 実行中に重ねて呼んでもRunOnceは呼ばれない
	s.runGuarded(context.Background())
	if got := runner.callCount(); got != 1 {
		t.Errorf("RunOnce calls = %d, want 1 (overlapping run skipped)", got)
	}

	close(runner.release)
	wg.Wait()

	// 完了後は再び実行できる
	s.runGuarded(context.Background())
	if got := runner.callCount(); got != 2 {
		t.Errorf("RunOnce calls = %d, want 2", got)
	}
}

// TestScheduler_RunGuarded_LeaseNotAcquired は他プロセスがリースを保持している
// 場合にサイクルがスキップされることをテストする。
func TestScheduler_RunGuarded_LeaseNotAcquired(t *testing.T) {
	runner := &blockingRunner{}
	lease := &mockLease{
		acquireFn: func(ctx context.Context) (bool, error) {
			return false, nil
		},
	}
	s := NewScheduler(runner, lease, testLogger(), time.Minute, time.Minute)

	s.runGuarded(context.Background())

	if runner.callCount() != 0 {
		t.Errorf("RunOnce calls = %d, want 0 (lease held elsewhere)", runner.callCount())
	}
}

// TestScheduler_RunGuarded_LeaseReleasedAfterRun はサイクル完了後に
// リースが解放されることをテストする。
func TestScheduler_RunGuarded_LeaseReleasedAfterRun(t *testing.T) {
	runner := &blockingRunner{}
	lease := &mockLease{}
	s := NewScheduler(runner, lease, testLogger(), time.Minute, time.Minute)

	s.runGuarded(context.Background())

	if runner.callCount() != 1 {
		t.Fatalf("RunOnce calls = %d, want 1", runner.callCount())
	}
	if !lease.released {
		t.Error("lease was not released after the run")
	}
}

// TestScheduler_RunGuarded_LeaseError はリース獲得の失敗時にサイクルを
// 実行しないことをテストする。
func TestScheduler_RunGuarded_LeaseError(t *testing.T) {
	runner := &blockingRunner{}
	lease := &mockLease{
		acquireFn: func(ctx context.Context) (bool, error) {
			return false, errors.New("redis unavailable")
		},
	}
	s := NewScheduler(runner, lease, testLogger(), time.Minute, time.Minute)

	s.runGuarded(context.Background())

	if runner.callCount() != 0 {
		t.Errorf("RunOnce calls = %d, want 0", runner.callCount())
	}
}
