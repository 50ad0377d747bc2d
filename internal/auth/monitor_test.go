package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/sociosync/internal/model"
)

func TestMonitor_RenewsWhileCredentialPresent(t *testing.T) {
	store := storedPair("a", "r")
	exchanger := &mockExchanger{}
	renewer := NewRenewer(store, exchanger, slog.Default(), nil)
	monitor := NewMonitor(renewer, store, 10*time.Millisecond, slog.Default(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	// 数サイクル分待つ
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if exchanger.refreshCalls.Load() < 2 {
		t.Errorf("複数サイクルで更新が繰り返されるはず: %d回", exchanger.refreshCalls.Load())
	}
}

func TestMonitor_NoCredentialIsIdleTick(t *testing.T) {
	// ログアウト競合: 認証情報がなくてもループは死なない
	store := &mockStore{}
	exchanger := &mockExchanger{}
	renewer := NewRenewer(store, exchanger, slog.Default(), nil)
	monitor := NewMonitor(renewer, store, 10*time.Millisecond, slog.Default(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)

	if exchanger.refreshCalls.Load() != 0 {
		t.Errorf("認証情報なしで交換が呼ばれた: %d回", exchanger.refreshCalls.Load())
	}

	// その後ログインしたらループが更新を始める
	store.Save(model.Credential{AccessToken: "a", RefreshToken: "r"})
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	if exchanger.refreshCalls.Load() == 0 {
		t.Error("ログイン後のサイクルで更新が始まるはず")
	}
}

func TestMonitor_DefinitiveRejectionStopsLoop(t *testing.T) {
	store := storedPair("a", "r")
	exchanger := &mockExchanger{
		refreshFn: func(context.Context, string) (model.Credential, error) {
			return model.Credential{}, model.ErrRenewalRejected
		},
	}
	renewer := NewRenewer(store, exchanger, slog.Default(), nil)

	var logouts atomic.Int64
	monitor := NewMonitor(renewer, store, 10*time.Millisecond, slog.Default(), func() {
		logouts.Add(1)
	})

	done := make(chan struct{})
	go func() {
		monitor.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("確定的な拒否でループが終了するはず")
	}

	if logouts.Load() != 1 {
		t.Errorf("強制ログアウト通知 = %d回, want 1回", logouts.Load())
	}
	if _, present := store.snapshot(); present {
		t.Error("拒否後はストアがクリアされるはず")
	}
}

func TestMonitor_TransientFailureKeepsLooping(t *testing.T) {
	store := storedPair("a", "r")
	var calls atomic.Int64
	exchanger := &mockExchanger{
		refreshFn: func(context.Context, string) (model.Credential, error) {
			calls.Add(1)
			return model.Credential{}, fmt.Errorf("一時的なネットワークエラー")
		},
	}
	renewer := NewRenewer(store, exchanger, slog.Default(), nil)

	var logouts atomic.Int64
	monitor := NewMonitor(renewer, store, 10*time.Millisecond, slog.Default(), func() {
		logouts.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if calls.Load() < 2 {
		t.Errorf("一時的失敗後もループが継続するはず: %d回", calls.Load())
	}
	if logouts.Load() != 0 {
		t.Errorf("一時的失敗で強制ログアウトしてはいけない: %d回", logouts.Load())
	}
	if _, present := store.snapshot(); !present {
		t.Error("一時的失敗でストアがクリアされてはいけない")
	}
}
