package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/hitoshi/jobwatch/internal/metrics"
	"github.com/hitoshi/jobwatch/internal/model"
)

// --- テスト用モック ---

// mockDeliveryRepo はテスト用のDeliveryRepositoryモック。
// 台帳の一意制約をメモリ上のマップで再現する。
type mockDeliveryRepo struct {
	mu       sync.Mutex
	claimed  map[string]bool // "subscriberID:postingID"
	outcomes map[string][2][]model.Channel

	claimFn func(ctx context.Context, record *model.DeliveryRecord) (bool, error)
}

func newMockDeliveryRepo() *mockDeliveryRepo {
	return &mockDeliveryRepo{
		claimed:  make(map[string]bool),
		outcomes: make(map[string][2][]model.Channel),
	}
}

func pairKey(subscriberID, postingID int64) string {
	return fmt.Sprintf("%d:%d", subscriberID, postingID)
}

func (m *mockDeliveryRepo) Exists(ctx context.Context, subscriberID, postingID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimed[pairKey(subscriberID, postingID)], nil
}

func (m *mockDeliveryRepo) Claim(ctx context.Context, record *model.DeliveryRecord) (bool, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(record.SubscriberID, record.PostingID)
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockDeliveryRepo) UpdateOutcome(ctx context.Context, id string, attempted, succeeded []model.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[id] = [2][]model.Channel{attempted, succeeded}
	return nil
}

// mockAdapter はテスト用のChannelAdapterモック。送信先を記録する。
type mockAdapter struct {
	channel   model.Channel
	deliverFn func(ctx context.Context, target string, msg *Message) error

	mu      sync.Mutex
	targets []string
}

func (a *mockAdapter) Name() model.Channel {
	return a.channel
}

func (a *mockAdapter) Target(subscriber *model.Subscriber) string {
	switch a.channel {
	case model.ChannelEmail:
		return subscriber.EmailAddress
	case model.ChannelChat:
		return subscriber.ChatHandle
	case model.ChannelPush:
		return subscriber.PushEndpoint
	}
	return ""
}

func (a *mockAdapter) Deliver(ctx context.Context, target string, msg *Message) error {
	a.mu.Lock()
	a.targets = append(a.targets, target)
	a.mu.Unlock()

	if a.deliverFn != nil {
		return a.deliverFn(ctx, target, msg)
	}
	return nil
}

func (a *mockAdapter) deliveryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.targets)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestDispatcher(repo *mockDeliveryRepo, adapters ...ChannelAdapter) *Dispatcher {
	return NewDispatcher(repo, adapters, nil, metrics.Nop{}, testLogger(), 4)
}

func testPosting() *model.Posting {
	return &model.Posting{
		ID:       100,
		Handle:   "clientco",
		Text:     "Need a video editor",
		URL:      "https://x.com/p/100",
		Category: model.CategoryVideoEditing,
	}
}

// --- Dispatch テスト ---

// TestDispatcher_Dispatch_AllEnabledChannels は有効な全チャネルへ独立に
// 送信され、結果が台帳に記録されることをテストする。
func TestDispatcher_Dispatch_AllEnabledChannels(t *testing.T) {
	repo := newMockDeliveryRepo()
	email := &mockAdapter{channel: model.ChannelEmail}
	chat := &mockAdapter{channel: model.ChannelChat}
	push := &mockAdapter{channel: model.ChannelPush}
	d := newTestDispatcher(repo, email, chat, push)

	subscriber := &model.Subscriber{
		ID:           1,
		EmailAddress: "user@example.com",
		ChatHandle:   "user1",
		// PushEndpointは未設定（pushチャネル無効）
	}

	d.Dispatch(context.Background(), testPosting(), []*model.Subscriber{subscriber})

	if email.deliveryCount() != 1 {
		t.Errorf("email deliveries = %d, want 1", email.deliveryCount())
	}
	if chat.deliveryCount() != 1 {
		t.Errorf("chat deliveries = %d, want 1", chat.deliveryCount())
	}
	if push.deliveryCount() != 0 {
		t.Errorf("push deliveries = %d, want 0 (no endpoint)", push.deliveryCount())
	}

	if len(repo.outcomes) != 1 {
		t.Fatalf("outcomes count = %d, want 1", len(repo.outcomes))
	}
	for _, outcome := range repo.outcomes {
		if len(outcome[0]) != 2 {
			t.Errorf("attempted = %v, want 2 channels", outcome[0])
		}
		if len(outcome[1]) != 2 {
			t.Errorf("succeeded = %v, want 2 channels", outcome[1])
		}
	}
}

// TestDispatcher_Dispatch_ChannelFailureIsIndependent は1チャネルの失敗が
// 他チャネルの送信に影響しないことをテストする。
func TestDispatcher_Dispatch_ChannelFailureIsIndependent(t *testing.T) {
	repo := newMockDeliveryRepo()
	email := &mockAdapter{
		channel: model.ChannelEmail,
		deliverFn: func(ctx context.Context, target string, msg *Message) error {
			return errors.New("smtp unavailable")
		},
	}
	chat := &mockAdapter{channel: model.ChannelChat}
	d := newTestDispatcher(repo, email, chat)

	subscriber := &model.Subscriber{
		ID:           1,
		EmailAddress: "user@example.com",
		ChatHandle:   "user1",
	}

	d.Dispatch(context.Background(), testPosting(), []*model.Subscriber{subscriber})

	if chat.deliveryCount() != 1 {
		t.Errorf("chat deliveries = %d, want 1 (independent of email failure)", chat.deliveryCount())
	}

	for _, outcome := range repo.outcomes {
		if len(outcome[0]) != 2 {
			t.Errorf("attempted = %v, want 2 channels", outcome[0])
		}
		if len(outcome[1]) != 1 || outcome[1][0] != model.ChannelChat {
			t.Errorf("succeeded = %v, want [chat]", outcome[1])
		}
	}
}

// TestDispatcher_Dispatch_AllChannelsFailedStillRecorded は全チャネルが
// 失敗しても台帳エントリが残り、再試行されないことをテストする。
func TestDispatcher_Dispatch_AllChannelsFailedStillRecorded(t *testing.T) {
	repo := newMockDeliveryRepo()
	email := &mockAdapter{
		channel: model.ChannelEmail,
		deliverFn: func(ctx context.Context, target string, msg *Message) error {
			return errors.New("smtp unavailable")
		},
	}
	d := newTestDispatcher(repo, email)

	subscriber := &model.Subscriber{ID: 1, EmailAddress: "user@example.com"}
	posting := testPosting()

	d.Dispatch(context.Background(), posting, []*model.Subscriber{subscriber})

	if !repo.claimed[pairKey(1, 100)] {
		t.Fatal("ledger entry not claimed")
	}
	for _, outcome := range repo.outcomes {
		if len(outcome[0]) != 1 {
			t.Errorf("attempted = %v, want [email]", outcome[0])
		}
		if len(outcome[1]) != 0 {
			t.Errorf("succeeded = %v, want empty", outcome[1])
		}
	}

	// 2回目のDispatchは台帳獲得に失敗し、送信は行われない（at-most-once）
	d.Dispatch(context.Background(), posting, []*model.Subscriber{subscriber})

	if email.deliveryCount() != 1 {
		t.Errorf("email deliveries = %d, want 1 (failed delivery is never retried)", email.deliveryCount())
	}
}

// TestDispatcher_Dispatch_DuplicateCallDeliversOnce は同一の(購読者, 投稿)
// ペアで2回呼ばれても配信が1回だけ行われることをテストする。
func TestDispatcher_Dispatch_DuplicateCallDeliversOnce(t *testing.T) {
	repo := newMockDeliveryRepo()
	email := &mockAdapter{channel: model.ChannelEmail}
	d := newTestDispatcher(repo, email)

	subscriber := &model.Subscriber{ID: 1, EmailAddress: "user@example.com"}
	posting := testPosting()

	d.Dispatch(context.Background(), posting, []*model.Subscriber{subscriber})
	d.Dispatch(context.Background(), posting, []*model.Subscriber{subscriber})

	if email.deliveryCount() != 1 {
		t.Errorf("email deliveries = %d, want 1", email.deliveryCount())
	}
	if len(repo.outcomes) != 1 {
		t.Errorf("outcomes count = %d, want 1", len(repo.outcomes))
	}
}

// TestDispatcher_Dispatch_NoChannelsSkipped は有効なチャネルを持たない
// 購読者がスキップされ、台帳エントリも作られないことをテストする。
func TestDispatcher_Dispatch_NoChannelsSkipped(t *testing.T) {
	repo := newMockDeliveryRepo()
	email := &mockAdapter{channel: model.ChannelEmail}
	d := newTestDispatcher(repo, email)

	subscriber := &model.Subscriber{ID: 1}

	d.Dispatch(context.Background(), testPosting(), []*model.Subscriber{subscriber})

	if email.deliveryCount() != 0 {
		t.Errorf("email deliveries = %d, want 0", email.deliveryCount())
	}
	if len(repo.claimed) != 0 {
		t.Errorf("claimed = %v, want empty", repo.claimed)
	}
}

// TestDispatcher_Dispatch_ClaimErrorSkipsSubscriber は台帳獲得の失敗が
// 該当購読者のスキップに留まることをテストする。
func TestDispatcher_Dispatch_ClaimErrorSkipsSubscriber(t *testing.T) {
	repo := newMockDeliveryRepo()
	repo.claimFn = func(ctx context.Context, record *model.DeliveryRecord) (bool, error) {
		if record.SubscriberID == 1 {
			return false, errors.New("connection refused")
		}
		return true, nil
	}
	email := &mockAdapter{channel: model.ChannelEmail}
	d := newTestDispatcher(repo, email)

	subscribers := []*model.Subscriber{
		{ID: 1, EmailAddress: "a@example.com"},
		{ID: 2, EmailAddress: "b@example.com"},
	}

	d.Dispatch(context.Background(), testPosting(), subscribers)

	if email.deliveryCount() != 1 {
		t.Errorf("email deliveries = %d, want 1 (subscriber 2 only)", email.deliveryCount())
	}
}
