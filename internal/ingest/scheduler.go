package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner はインジェストサイクルの実行インターフェース。
type Runner interface {
	RunOnce(ctx context.Context) error
}

// Lease は複数プロセス間の単一実行を保証する分散リースのインターフェース。
// nilの場合はプロセス内ガードのみで単一実行を保証する。
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler はcronでインジェストサイクルを定期実行する。
// 前回のサイクルが終わっていない場合、次のティックはスキップされる
// （キューイングしない）。
type Scheduler struct {
	runner     Runner
	lease      Lease // nil許容
	logger     *slog.Logger
	cron       *cron.Cron
	interval   time.Duration
	runTimeout time.Duration

	mu sync.Mutex // 実行中フラグ（プロセス内single-flight）
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(runner Runner, lease Lease, logger *slog.Logger, interval, runTimeout time.Duration) *Scheduler {
	return &Scheduler{
		runner:     runner,
		lease:      lease,
		logger:     logger,
		cron:       cron.New(),
		interval:   interval,
		runTimeout: runTimeout,
	}
}

// Start はスケジューラを起動する。起動直後に1回実行し、以降は間隔ごとに実行する。
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		s.runGuarded(ctx)
	})
	if err != nil {
		return fmt.Errorf("cronジョブの登録に失敗しました: %w", err)
	}

	s.cron.Start()
	s.logger.Info("インジェストスケジューラを開始しました",
		slog.Duration("interval", s.interval),
		slog.Duration("run_timeout", s.runTimeout),
	)

	// 起動直後に1回実行（最初のティックを待たない）
	go s.runGuarded(ctx)

	return nil
}

// Stop はスケジューラを停止し、実行中のジョブの完了を待つ。
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("インジェストスケジューラを停止しました")
}

// runGuarded はsingle-flightガードの下でサイクルを1回実行する。
// プロセス内ではTryLock、プロセス間ではリースで重複実行を防ぐ。
// ガードを取れなかったティックはスキップされる。
func (s *Scheduler) runGuarded(ctx context.Context) {
	if !s.mu.TryLock() {
		s.logger.Warn("前回のインジェストサイクルが実行中のためスキップします")
		return
	}
	defer s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if s.lease != nil {
		acquired, err := s.lease.Acquire(runCtx)
		if err != nil {
			s.logger.Error("実行リースの獲得に失敗しました",
				slog.String("error", err.Error()),
			)
			return
		}
		if !acquired {
			s.logger.Info("他プロセスがインジェストサイクルを実行中のためスキップします")
			return
		}
		defer func() {
			if err := s.lease.Release(context.WithoutCancel(runCtx)); err != nil {
				s.logger.Warn("実行リースの解放に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	if err := s.runner.RunOnce(runCtx); err != nil {
		s.logger.Error("インジェストサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
