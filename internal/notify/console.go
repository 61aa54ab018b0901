package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hitoshi/jobwatch/internal/model"
)

// ConsoleAdapter は標準出力へメッセージを書き出すチャネルアダプタ。
// 開発環境およびチャット/プッシュの外部連携が未設定の場合のフォールバックとして使用する。
type ConsoleAdapter struct {
	channel model.Channel
	w       io.Writer
	mu      sync.Mutex
}

// NewConsoleAdapter は指定チャネルとして振る舞うConsoleAdapterを生成する。
func NewConsoleAdapter(channel model.Channel, w io.Writer) *ConsoleAdapter {
	return &ConsoleAdapter{channel: channel, w: w}
}

// Name はチャネル識別子を返す。
func (a *ConsoleAdapter) Name() model.Channel {
	return a.channel
}

// Target は購読者のこのチャネル向け宛先を返す。
func (a *ConsoleAdapter) Target(subscriber *model.Subscriber) string {
	switch a.channel {
	case model.ChannelEmail:
		return subscriber.EmailAddress
	case model.ChannelChat:
		return subscriber.ChatHandle
	case model.ChannelPush:
		return subscriber.PushEndpoint
	default:
		return ""
	}
}

// Deliver はメッセージを書き出す。並行呼び出しでも出力が混ざらないようロックする。
func (a *ConsoleAdapter) Deliver(ctx context.Context, target string, msg *Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := fmt.Fprintf(a.w, "[%s -> %s] %s\n%s\n", a.channel, target, msg.Subject, msg.Body)
	if err != nil {
		return fmt.Errorf("コンソールへの出力に失敗しました: %w", err)
	}
	return nil
}

var _ ChannelAdapter = (*ConsoleAdapter)(nil)
