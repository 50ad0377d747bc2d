package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/sociosync/internal/model"
)

// tokenPayload はトークン発行系エンドポイントのレスポンス。
// トークンはトップレベルまたはdata配下のどちらでも返される可能性があり、
// 両方の形を受け付ける。
type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Data         *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"data"`
}

// credential はレスポンスから認証情報ペアを組み立てる。
// data配下を優先し、なければトップレベルを使う。
func (p tokenPayload) credential() model.Credential {
	if p.Data != nil && p.Data.AccessToken != "" && p.Data.RefreshToken != "" {
		return model.Credential{
			AccessToken:  p.Data.AccessToken,
			RefreshToken: p.Data.RefreshToken,
		}
	}
	return model.Credential{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
	}
}

// Refresh はリフレッシュトークンを新しいペアに交換する（1往復）。
// 非2xx・不正なボディ・トークンフィールドの欠落はすべて
// model.ErrRenewalRejected（確定的な拒否）として扱い、部分的なペアは返さない。
// ネットワーク層の失敗のみ通常のエラー（一時的）として返す。
func (c *Client) Refresh(ctx context.Context, refreshToken string) (model.Credential, error) {
	return c.exchangeTokens(ctx, "/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	})
}

// Login はメールアドレスとパスワードで認証し、新しいペアを取得する。
func (c *Client) Login(ctx context.Context, email, password string) (model.Credential, error) {
	return c.exchangeTokens(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// exchangeTokens はトークン発行系エンドポイントへのPOSTを実行する。
func (c *Client) exchangeTokens(ctx context.Context, path string, payload map[string]string) (model.Credential, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Credential{}, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return model.Credential{}, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// ネットワーク層の失敗は一時的エラーであり、確定的な拒否とは区別する
		return model.Credential{}, fmt.Errorf("トークンエンドポイントへのリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Credential{}, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Credential{}, fmt.Errorf("%w: status %d", model.ErrRenewalRejected, resp.StatusCode)
	}

	var parsed tokenPayload
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.Credential{}, fmt.Errorf("%w: レスポンスのパースに失敗しました", model.ErrRenewalRejected)
	}

	cred := parsed.credential()
	if !cred.Valid() {
		return model.Credential{}, fmt.Errorf("%w: トークンフィールドが欠落しています", model.ErrRenewalRejected)
	}

	return cred, nil
}
