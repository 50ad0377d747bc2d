package directus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage はテストサーバー側で受信するクライアントメッセージ。
type wsMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
	Collection  string `json:"collection"`
	Event       string `json:"event"`
	UID         string `json:"uid"`
}

// newRealtimeTestServer は認証ハンドシェイクと購読受付を行うテスト用
// WebSocketサーバーを起動し、接続確立後のコネクションをhandlerに渡す。
func newRealtimeTestServer(t *testing.T, handler func(conn *websocket.Conn, subs []wsMessage)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/websocket" {
			t.Errorf("path = %q, want /websocket", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		// 認証メッセージ
		var auth wsMessage
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth.Type != "auth" || auth.AccessToken == "" {
			conn.WriteJSON(map[string]string{"type": "auth", "status": "error"})
			conn.Close()
			return
		}
		conn.WriteJSON(map[string]string{"type": "auth", "status": "ok"})

		// 3件の購読リクエスト
		var subs []wsMessage
		for i := 0; i < 3; i++ {
			var sub wsMessage
			if err := conn.ReadJSON(&sub); err != nil {
				return
			}
			subs = append(subs, sub)
		}

		handler(conn, subs)
	}))
	t.Cleanup(server.Close)

	return server
}

func newTestRealtime(serverURL string) *Realtime {
	return NewRealtime(ClientConfig{
		BaseURL:    serverURL,
		Collection: "socios",
		PrimaryKey: "ID_Socio",
	}, slog.Default())
}

func TestRealtime_SubscribeAndReceive(t *testing.T) {
	server := newRealtimeTestServer(t, func(conn *websocket.Conn, subs []wsMessage) {
		events := map[string]bool{}
		for _, sub := range subs {
			if sub.Type != "subscribe" {
				t.Errorf("type = %q, want subscribe", sub.Type)
			}
			if sub.Collection != "socios" {
				t.Errorf("collection = %q, want socios", sub.Collection)
			}
			if sub.UID == "" {
				t.Error("購読uidが空")
			}
			events[sub.Event] = true
		}
		for _, want := range []string{"create", "update", "delete"} {
			if !events[want] {
				t.Errorf("イベント %q が購読されていない", want)
			}
		}

		// 変更イベントを1件配送
		conn.WriteJSON(map[string]any{
			"type":  "subscription",
			"event": "update",
			"data":  []map[string]any{{"ID_Socio": 3, "Nombres_Completos": "Eva"}},
		})
	})

	rt := newTestRealtime(server.URL)
	sub, err := rt.Subscribe(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	select {
	case ev := <-sub.Events:
		if ev.Event != "update" {
			t.Errorf("event = %q, want update", ev.Event)
		}
		var records []json.RawMessage
		if err := json.Unmarshal(ev.Data, &records); err != nil || len(records) != 1 {
			t.Errorf("dataペイロードが不正: %s", ev.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("イベントが届かない")
	}
}

func TestRealtime_AuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var auth wsMessage
		conn.ReadJSON(&auth)
		conn.WriteJSON(map[string]string{"type": "auth", "status": "error"})
		conn.Close()
	}))
	t.Cleanup(server.Close)

	rt := newTestRealtime(server.URL)
	_, err := rt.Subscribe(context.Background(), "bad-token")
	if err == nil {
		t.Fatal("認証拒否でエラーが返るはず")
	}
	if !strings.Contains(err.Error(), "拒否") {
		t.Errorf("err = %v", err)
	}
}

func TestRealtime_PingPong(t *testing.T) {
	gotPong := make(chan struct{})

	server := newRealtimeTestServer(t, func(conn *websocket.Conn, subs []wsMessage) {
		conn.WriteJSON(map[string]string{"type": "ping"})
		var reply wsMessage
		if err := conn.ReadJSON(&reply); err != nil {
			t.Errorf("pong待機中にエラー: %v", err)
			return
		}
		if reply.Type != "pong" {
			t.Errorf("type = %q, want pong", reply.Type)
		}
		close(gotPong)
	})

	rt := newTestRealtime(server.URL)
	sub, err := rt.Subscribe(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	select {
	case <-gotPong:
	case <-time.After(2 * time.Second):
		t.Fatal("pongが返らない")
	}
}

func TestRealtime_ChannelClosedOnDisconnect(t *testing.T) {
	server := newRealtimeTestServer(t, func(conn *websocket.Conn, subs []wsMessage) {
		conn.Close()
	})

	rt := newTestRealtime(server.URL)
	sub, err := rt.Subscribe(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case _, ok := <-sub.Events:
		if ok {
			// initなどが届く場合もあるのでクローズまで読み進める
			for range sub.Events {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("切断後はEventsがクローズされるはず")
	}
}

func TestRealtime_WebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "https://directus.example.com", want: "wss://directus.example.com/websocket"},
		{base: "http://localhost:8055", want: "ws://localhost:8055/websocket"},
	}

	for _, tt := range tests {
		rt := NewRealtime(ClientConfig{BaseURL: tt.base}, slog.Default())
		got, err := rt.websocketURL()
		if err != nil {
			t.Fatalf("websocketURL() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("websocketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
