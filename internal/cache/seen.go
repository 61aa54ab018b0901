package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache は配信済みの(購読者, 投稿)ペアを短期間記録するキャッシュ。
// 配信台帳の一意制約に対する高速パスであり、正しさの根拠ではない。
// キャッシュミスやRedis障害時は台帳へフォールバックする。
type SeenCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSeenCache はSeenCacheを生成する。
// ttlは重複チェックの対象期間と同程度に設定すること。
func NewSeenCache(client *redis.Client, ttl time.Duration) *SeenCache {
	return &SeenCache{client: client, ttl: ttl}
}

func seenKey(subscriberID, postingID int64) string {
	return fmt.Sprintf("jobwatch:delivered:%d:%d", subscriberID, postingID)
}

// Seen はペアが配信済みとして記録されているかを返す。
func (c *SeenCache) Seen(ctx context.Context, subscriberID, postingID int64) (bool, error) {
	n, err := c.client.Exists(ctx, seenKey(subscriberID, postingID)).Result()
	if err != nil {
		return false, fmt.Errorf("配信済みキャッシュの参照に失敗しました: %w", err)
	}
	return n > 0, nil
}

// MarkSeen はペアを配信済みとして記録する。
func (c *SeenCache) MarkSeen(ctx context.Context, subscriberID, postingID int64) error {
	if err := c.client.Set(ctx, seenKey(subscriberID, postingID), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("配信済みキャッシュの更新に失敗しました: %w", err)
	}
	return nil
}
