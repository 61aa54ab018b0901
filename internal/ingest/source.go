// Package ingest は候補投稿の取り込みサイクルを提供する。
// スケジューラ、コーディネーター、候補ソースを含む。
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/jobwatch/internal/model"
)

// Source は候補投稿の供給元のインターフェース。
// スクレイパー本体（ブラウザ自動化等）は本コアの外にあり、
// このインターフェース越しに候補を受け取る。
type Source interface {
	// Pull は指定カテゴリの候補を最大maxResults件取得する。
	Pull(ctx context.Context, category model.Category, maxResults int) ([]*model.Candidate, error)
}

// maxResponseSize はスクレイパーAPIレスポンスの最大サイズ（10MB）。
const maxResponseSize = 10 * 1024 * 1024

// HTTPSource はスクレイパーAPIから候補をHTTP経由で取得するSource実装。
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource はHTTPSourceを生成する。
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// sourceCandidate はスクレイパーAPIのレスポンス形式。
type sourceCandidate struct {
	NativeID string     `json:"native_id"`
	URL      string     `json:"url"`
	Author   string     `json:"author"`
	Handle   string     `json:"handle"`
	Text     string     `json:"text"`
	Budget   *float64   `json:"budget"`
	PostedAt *time.Time `json:"posted_at"`
	Likes    int        `json:"likes"`
	Replies  int        `json:"replies"`
	Reshares int        `json:"reshares"`
}

// Pull は指定カテゴリの候補をスクレイパーAPIから取得する。
func (s *HTTPSource) Pull(ctx context.Context, category model.Category, maxResults int) ([]*model.Candidate, error) {
	url := fmt.Sprintf("%s/candidates?category=%s&limit=%d", s.baseURL, category, maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Jobwatch/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("スクレイパーAPIへのリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("スクレイパーAPIが異常ステータスを返しました: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}

	var raw []sourceCandidate
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("レスポンスのパースに失敗: %w", err)
	}

	candidates := make([]*model.Candidate, 0, len(raw))
	for _, c := range raw {
		candidates = append(candidates, &model.Candidate{
			NativeID: c.NativeID,
			URL:      c.URL,
			Author:   c.Author,
			Handle:   c.Handle,
			Text:     c.Text,
			Category: category,
			Budget:   c.Budget,
			PostedAt: c.PostedAt,
			Engagement: model.Engagement{
				Likes:    c.Likes,
				Replies:  c.Replies,
				Reshares: c.Reshares,
			},
		})
	}

	return candidates, nil
}

var _ Source = (*HTTPSource)(nil)
