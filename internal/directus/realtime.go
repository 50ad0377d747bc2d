package directus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 認証ハンドシェイクの応答待ちの上限。
const authHandshakeTimeout = 5 * time.Second

// subscribedEvents は購読する3つのイベント種別。
var subscribedEvents = []string{"create", "update", "delete"}

// Event はリアルタイムチャネルから届く1メッセージを表す。
// DataとKeysはペイロード形状が複数あるため生のまま保持し、
// 識別子の抽出は受信側（changefeed）の抽出戦略に委ねる。
type Event struct {
	Type   string          `json:"type"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Keys   json.RawMessage `json:"keys"`
	UID    string          `json:"uid"`
	Status string          `json:"status"`
}

// Subscription はアクティブなリアルタイム購読を表す。
// Eventsはソケットが閉じられるとクローズされる。
type Subscription struct {
	Events <-chan Event

	conn   *websocket.Conn
	logger *slog.Logger
}

// Close は購読を終了しソケットを閉じる。複数回呼んでも安全。
func (s *Subscription) Close() {
	_ = s.conn.Close()
}

// Realtime はリアルタイム購読用のWebSocketクライアント。
type Realtime struct {
	config ClientConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewRealtime はRealtimeの新しいインスタンスを生成する。
func NewRealtime(config ClientConfig, logger *slog.Logger) *Realtime {
	return &Realtime{
		config: config,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// websocketURL はベースURLからWebSocketエンドポイントのURLを導出する。
func (r *Realtime) websocketURL() (string, error) {
	u, err := url.Parse(r.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("ベースURLのパースに失敗しました: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("未対応のスキームです: %s", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/websocket"
	return u.String(), nil
}

// Subscribe はプッシュチャネルを開き、対象コレクションの
// create/update/deleteイベントを固定フィールドリスト付きで購読する。
// 接続・認証・購読のいずれかに失敗した場合はエラーを返す（接続レベルの失敗）。
func (r *Realtime) Subscribe(ctx context.Context, accessToken string) (*Subscription, error) {
	wsURL, err := r.websocketURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := r.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("プッシュチャネルの接続に失敗しました: %w", err)
	}

	// 認証ハンドシェイク
	if err := r.authenticate(conn, accessToken); err != nil {
		conn.Close()
		return nil, err
	}

	// 3イベント種別の購読。uidで購読を相関づける。
	for _, event := range subscribedEvents {
		msg := map[string]any{
			"type":       "subscribe",
			"collection": r.config.Collection,
			"event":      event,
			"uid":        uuid.New().String(),
			"query": map[string]any{
				"fields": memberFields,
			},
		}
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("購読リクエストの送信に失敗しました: %w", err)
		}
	}

	events := make(chan Event, 64)
	sub := &Subscription{
		Events: events,
		conn:   conn,
		logger: r.logger,
	}

	go sub.readLoop(events)

	return sub, nil
}

// authenticate はアクセストークンを送信し、認証応答を待つ。
func (r *Realtime) authenticate(conn *websocket.Conn, accessToken string) error {
	if err := conn.WriteJSON(map[string]string{
		"type":         "auth",
		"access_token": accessToken,
	}); err != nil {
		return fmt.Errorf("認証メッセージの送信に失敗しました: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(authHandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	// 認証応答が届くまで読み進める（サーバーによってはpingが先に届く）。
	for {
		var reply Event
		if err := conn.ReadJSON(&reply); err != nil {
			return fmt.Errorf("認証応答の受信に失敗しました: %w", err)
		}
		switch reply.Type {
		case "ping":
			if err := conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
				return fmt.Errorf("pongの送信に失敗しました: %w", err)
			}
		case "auth":
			if reply.Status != "ok" {
				return fmt.Errorf("プッシュチャネルの認証が拒否されました: status=%s", reply.Status)
			}
			return nil
		default:
			// 認証前の他メッセージは読み捨てる
		}
	}
}

// readLoop はソケットからメッセージを読み取り、購読イベントを配送する。
// pingへの応答はここで行う。読み取りエラーでチャネルをクローズして終了する。
func (s *Subscription) readLoop(events chan<- Event) {
	defer close(events)
	defer s.conn.Close()

	for {
		var ev Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			s.logger.Info("プッシュチャネルが切断されました",
				slog.String("error", err.Error()),
			)
			return
		}

		switch ev.Type {
		case "ping":
			if err := s.conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
				s.logger.Warn("pongの送信に失敗しました", slog.String("error", err.Error()))
				return
			}
		case "subscription":
			// 購読確立応答（event: init）もそのまま流し、受信側で無視する
			events <- ev
		default:
			// auth応答の再送などは無視
		}
	}
}
