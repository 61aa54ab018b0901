package engagement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/jobwatch/internal/model"
)

// maxResponseSize はAPIレスポンスの最大サイズ（1MB）。
const maxResponseSize = 1 * 1024 * 1024

// Client はスクレイパーAPIのエンゲージメントエンドポイントを呼び出すCounterSource実装。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient はClientを生成する。
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// engagementEntry はAPIレスポンスの1エントリ。
type engagementEntry struct {
	NativeID string `json:"native_id"`
	Likes    int    `json:"likes"`
	Replies  int    `json:"replies"`
	Reshares int    `json:"reshares"`
}

// GetEngagementCounts はnative_idごとのエンゲージメント数を取得する。
// レスポンスに含まれないIDは削除済み投稿として扱われる。
func (c *Client) GetEngagementCounts(ctx context.Context, nativeIDs []string) (map[string]model.Engagement, error) {
	reqURL := fmt.Sprintf("%s/engagement?ids=%s", c.baseURL, url.QueryEscape(strings.Join(nativeIDs, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Jobwatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("エンゲージメントAPIへのリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("エンゲージメントAPIが異常ステータスを返しました: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}

	var entries []engagementEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("レスポンスのパースに失敗: %w", err)
	}

	counts := make(map[string]model.Engagement, len(entries))
	for _, e := range entries {
		counts[e.NativeID] = model.Engagement{
			Likes:    e.Likes,
			Replies:  e.Replies,
			Reshares: e.Reshares,
		}
	}

	return counts, nil
}

var _ CounterSource = (*Client)(nil)
