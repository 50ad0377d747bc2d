// Package directus はDirectusスタイルAPIへのアクセスを提供する。
// RESTクライアント（認証プローブ・トークン更新・CRUD・一覧/単件取得）と
// リアルタイム購読用のWebSocketクライアントを含む。
package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hitoshi/sociosync/internal/model"
)

// memberFields は一覧・購読で取得する固定フィールドリスト。
var memberFields = []string{
	"ID_Socio",
	"Nombres_Completos",
	"Apellidos_Completos",
	"Cedula_Identidad",
	"Fecha_Nacimiento",
	"Direccion_Domicilio",
	"Telefono_Celular",
	"Correo_Electronico",
	"Fecha_Ingreso",
	"Estado_Socio",
}

// defaultSort は一覧取得時のソートキー（姓、名の昇順）。
const defaultSort = "Apellidos_Completos,Nombres_Completos"

// ClientConfig はRESTクライアントの設定。
type ClientConfig struct {
	BaseURL    string // 末尾スラッシュなしのベースURL
	Collection string // 同期対象コレクション名
	PrimaryKey string // 主キーのフィールド名
	ListLimit  int    // 一覧取得の上限件数
}

// Client はDirectusスタイルAPIのRESTクライアント。
// アクセストークンは差し替え可能で、トークン更新後はSetTokenで即時反映する。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(config ClientConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if config.ListLimit <= 0 {
		config.ListLimit = 500
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SetToken は以降のリクエストで使うアクセストークンを差し替える。
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token は現在のアクセストークンを返す。
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// dataEnvelope はDirectusのレスポンス封筒。中身はエンドポイントにより異なる。
type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// do は認証ヘッダー付きでリクエストを実行し、ステータスを分類する。
// 401/403はmodel.ErrAuthExpiredとして返し、呼び出し元の更新フローに委ねる。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	reqURL := c.config.BaseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("バックエンドへのリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", model.ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("バックエンドがステータス %d を返しました: %s", resp.StatusCode, truncate(respBody, 200))
	}

	return respBody, nil
}

// Probe は安価な認証付きリクエストで現在のトークンが有効かを確認する。
func (c *Client) Probe(ctx context.Context) error {
	query := url.Values{"fields": {"id"}}
	_, err := c.do(ctx, http.MethodGet, "/users/me", query, nil)
	return err
}

// ListMembers は会員の全件一覧を取得する。
// 固定フィールドリスト・姓名昇順ソート・設定された上限件数で取得する。
func (c *Client) ListMembers(ctx context.Context) ([]model.Member, error) {
	query := url.Values{
		"fields": {strings.Join(memberFields, ",")},
		"sort":   {defaultSort},
		"limit":  {fmt.Sprintf("%d", c.config.ListLimit)},
	}

	body, err := c.do(ctx, http.MethodGet, "/items/"+c.config.Collection, query, nil)
	if err != nil {
		return nil, err
	}

	var env struct {
		Data []model.Member `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("一覧レスポンスのパースに失敗しました: %w", err)
	}

	return env.Data, nil
}

// FetchMember は主キー一致フィルタで単一会員を取得する（limit 1）。
// 該当なしの場合はmodel.ErrMemberNotFoundを返す。
func (c *Client) FetchMember(ctx context.Context, id model.MemberID) (*model.Member, error) {
	query := url.Values{
		"fields": {strings.Join(memberFields, ",")},
		"limit":  {"1"},
	}
	query.Set(fmt.Sprintf("filter[%s][_eq]", c.config.PrimaryKey), id.String())

	body, err := c.do(ctx, http.MethodGet, "/items/"+c.config.Collection, query, nil)
	if err != nil {
		return nil, err
	}

	var env struct {
		Data []model.Member `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("単件取得レスポンスのパースに失敗しました: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrMemberNotFound, id)
	}

	member := env.Data[0]
	return &member, nil
}

// CreateMember は会員を新規作成し、バックエンドが採番したIDを返す。
func (c *Client) CreateMember(ctx context.Context, member *model.Member) (model.MemberID, error) {
	body, err := c.do(ctx, http.MethodPost, "/items/"+c.config.Collection, nil, member)
	if err != nil {
		return "", err
	}

	var env struct {
		Data model.Member `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("作成レスポンスのパースに失敗しました: %w", err)
	}

	return env.Data.ID, nil
}

// UpdateMember は指定IDの会員を部分更新する。
func (c *Client) UpdateMember(ctx context.Context, id model.MemberID, patch map[string]any) error {
	_, err := c.do(ctx, http.MethodPatch, "/items/"+c.config.Collection+"/"+url.PathEscape(id.String()), nil, patch)
	return err
}

// DeleteMember は指定IDの会員を削除する。
func (c *Client) DeleteMember(ctx context.Context, id model.MemberID) error {
	_, err := c.do(ctx, http.MethodDelete, "/items/"+c.config.Collection+"/"+url.PathEscape(id.String()), nil, nil)
	return err
}

// truncate はエラーメッセージに含めるレスポンスボディを切り詰める。
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
