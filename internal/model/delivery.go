package model

import "time"

// Channel は通知チャネルの識別子を表す。
type Channel string

const (
	// ChannelEmail はメール通知チャネル。
	ChannelEmail Channel = "email"
	// ChannelChat はチャットボット通知チャネル。
	ChannelChat Channel = "chat"
	// ChannelPush はプッシュ通知チャネル。
	ChannelPush Channel = "push"
)

// DeliveryRecord は(購読者, 投稿)ペアごとの冪等性台帳エントリを表す。
// (SubscriberID, PostingID)で一意であり、一度作成されたら再試行されない。
// 全チャネルが失敗した場合も「試行済み」として記録される（at-most-once配信）。
type DeliveryRecord struct {
	ID                string // UUID
	SubscriberID      int64
	PostingID         int64
	AttemptedChannels []Channel
	SucceededChannels []Channel
	CreatedAt         time.Time
}
