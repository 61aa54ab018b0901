package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobwatch/internal/metrics"
	"github.com/hitoshi/jobwatch/internal/model"
	"github.com/hitoshi/jobwatch/internal/repository"
)

// SeenMarker は配信済みペアの短期キャッシュ。台帳より先に参照する高速パス。
// 実装がなくても冪等性は台帳の一意制約だけで成立する。
type SeenMarker interface {
	// Seen は(購読者, 投稿)ペアが配信済みとして記録されているかを返す。
	Seen(ctx context.Context, subscriberID, postingID int64) (bool, error)
	// MarkSeen はペアを配信済みとして記録する。
	MarkSeen(ctx context.Context, subscriberID, postingID int64) error
}

// Dispatcher は通知のファンアウトを実行する。
// 購読者ごとにgoroutineを起動し、セマフォで並行数を制限する。
type Dispatcher struct {
	deliveryRepo repository.DeliveryRepository
	adapters     []ChannelAdapter
	seen         SeenMarker // nilの場合は高速パスを使用しない
	metrics      metrics.MetricsCollector
	logger       *slog.Logger
	maxConc      int
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// seenはnil許容。maxConcurrentが0以下の場合は1として扱う。
func NewDispatcher(
	deliveryRepo repository.DeliveryRepository,
	adapters []ChannelAdapter,
	seen SeenMarker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrent int,
) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		deliveryRepo: deliveryRepo,
		adapters:     adapters,
		seen:         seen,
		metrics:      collector,
		logger:       logger,
		maxConc:      maxConcurrent,
	}
}

// Dispatch は投稿をマッチした購読者全員へファンアウトする。
// 購読者単位の失敗は他の購読者へ影響しない。
// 同一の(購読者, 投稿)ペアで再度呼ばれても台帳獲得に失敗するだけで、二重配信はされない。
func (d *Dispatcher) Dispatch(ctx context.Context, posting *model.Posting, subscribers []*model.Subscriber) {
	if len(subscribers) == 0 {
		return
	}

	msg := BuildMessage(posting)

	sem := make(chan struct{}, d.maxConc)
	var wg sync.WaitGroup

	for _, subscriber := range subscribers {
		wg.Add(1)
		sem <- struct{}{}

		go func(subscriber *model.Subscriber) {
			defer wg.Done()
			defer func() { <-sem }()

			d.dispatchOne(ctx, posting, subscriber, msg)
		}(subscriber)
	}

	wg.Wait()
}

// dispatchOne は単一の購読者への配信を処理する。
// 台帳エントリを獲得してから各チャネルへ送信し、結果を台帳に記録する。
// 全チャネルが失敗しても台帳エントリは残り、再試行されない（at-most-once）。
func (d *Dispatcher) dispatchOne(ctx context.Context, posting *model.Posting, subscriber *model.Subscriber, msg *Message) {
	if !subscriber.HasChannel() {
		d.logger.Debug("有効な通知チャネルがないためスキップします",
			slog.Int64("subscriber_id", subscriber.ID),
			slog.Int64("posting_id", posting.ID),
		)
		return
	}

	// 高速パス: キャッシュに配信済みの記録があれば台帳を見ずにスキップする。
	// キャッシュの失敗は無視して台帳へフォールバックする。
	if d.seen != nil {
		if seen, err := d.seen.Seen(ctx, subscriber.ID, posting.ID); err == nil && seen {
			return
		}
	}

	record := &model.DeliveryRecord{
		ID:           uuid.New().String(),
		SubscriberID: subscriber.ID,
		PostingID:    posting.ID,
		CreatedAt:    time.Now(),
	}

	claimed, err := d.deliveryRepo.Claim(ctx, record)
	if err != nil {
		d.logger.Error("配信台帳の獲得に失敗しました",
			slog.Int64("subscriber_id", subscriber.ID),
			slog.Int64("posting_id", posting.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !claimed {
		// 既に配信済み（または並行する別のファンアウトが獲得済み）
		return
	}

	var attempted, succeeded []model.Channel
	for _, adapter := range d.adapters {
		target := adapter.Target(subscriber)
		if target == "" {
			continue
		}

		attempted = append(attempted, adapter.Name())
		if err := adapter.Deliver(ctx, target, msg); err != nil {
			d.metrics.RecordNotification(string(adapter.Name()), false)
			d.logger.Error("通知の送信に失敗しました",
				slog.String("channel", string(adapter.Name())),
				slog.Int64("subscriber_id", subscriber.ID),
				slog.Int64("posting_id", posting.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		d.metrics.RecordNotification(string(adapter.Name()), true)
		succeeded = append(succeeded, adapter.Name())
	}

	if err := d.deliveryRepo.UpdateOutcome(ctx, record.ID, attempted, succeeded); err != nil {
		d.logger.Error("配信結果の記録に失敗しました",
			slog.String("record_id", record.ID),
			slog.String("error", err.Error()),
		)
	}

	if d.seen != nil {
		if err := d.seen.MarkSeen(ctx, subscriber.ID, posting.ID); err != nil {
			d.logger.Warn("配信済みキャッシュの更新に失敗しました",
				slog.Int64("subscriber_id", subscriber.ID),
				slog.Int64("posting_id", posting.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	d.logger.Info("通知を配信しました",
		slog.Int64("subscriber_id", subscriber.ID),
		slog.Int64("posting_id", posting.ID),
		slog.Int("attempted", len(attempted)),
		slog.Int("succeeded", len(succeeded)),
	)
}
