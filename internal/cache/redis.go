// Package cache はRedisを使用した短期キャッシュと分散ロックを提供する。
// Redisは任意の依存であり、未設定でもコアの冪等性は損なわれない。
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient はRedis URLをパースし、接続を検証したクライアントを返す。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("Redis URLのパースに失敗しました: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redisへの接続に失敗しました: %w", err)
	}

	return client, nil
}

// RunLease はSET NXによる実行リースを提供する。
// 複数プロセスが同時に起動した場合でも、リースを獲得した1プロセスだけが
// インジェストサイクルを実行する。
type RunLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRunLease はRunLeaseを生成する。
// ttlはサイクルの実行タイムアウトより長く設定すること。
// プロセスがクラッシュしてもTTLの失効でリースは解放される。
func NewRunLease(client *redis.Client, key string, ttl time.Duration) *RunLease {
	return &RunLease{client: client, key: key, ttl: ttl}
}

// Acquire はリースの獲得を試みる。獲得できた場合はtrueを返す。
func (l *RunLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("実行リースの獲得に失敗しました: %w", err)
	}
	return ok, nil
}

// Release はリースを解放する。
func (l *RunLease) Release(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("実行リースの解放に失敗しました: %w", err)
	}
	return nil
}
