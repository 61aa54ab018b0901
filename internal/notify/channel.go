// Package notify はマッチした購読者への通知配信を提供する。
//
// 配信はat-most-once。(購読者, 投稿)ペアごとに台帳エントリを獲得してから
// 各チャネルへの送信を試行し、全チャネルが失敗しても再試行しない。
package notify

import (
	"context"

	"github.com/hitoshi/jobwatch/internal/model"
)

// ChannelAdapter は単一の通知チャネルへの送信を抽象化する。
// 実装はスレッドセーフであること。ファンアウトから並行に呼ばれる。
type ChannelAdapter interface {
	// Name はチャネル識別子を返す。台帳とメトリクスのラベルに使用される。
	Name() model.Channel

	// Target は購読者のこのチャネル向け宛先を返す。
	// 空文字列の場合、このチャネルは購読者に対して無効。
	Target(subscriber *model.Subscriber) string

	// Deliver はメッセージを宛先へ送信する。
	// 失敗してもディスパッチャーは再試行しない（at-most-once）。
	Deliver(ctx context.Context, target string, msg *Message) error
}
