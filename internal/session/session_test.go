package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/sociosync/internal/model"
)

type mockValidator struct {
	err   error
	calls atomic.Int64
}

func (m *mockValidator) EnsureValid(context.Context) error {
	m.calls.Add(1)
	return m.err
}

type mockRunner struct {
	running atomic.Bool
	runs    atomic.Int64
}

func (m *mockRunner) Run(ctx context.Context) {
	m.runs.Add(1)
	m.running.Store(true)
	<-ctx.Done()
	m.running.Store(false)
}

func TestSession_StartRunsComponentsAfterValidation(t *testing.T) {
	guard := &mockValidator{}
	feed := &mockRunner{}
	monitor := &mockRunner{}
	s := New(guard, feed, monitor, slog.Default())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if feed.running.Load() && monitor.running.Load() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !feed.running.Load() || !monitor.running.Load() {
		t.Error("検証成功後にフィードと監視が起動するはず")
	}
	if guard.calls.Load() != 1 {
		t.Errorf("検証回数 = %d, want 1", guard.calls.Load())
	}
}

func TestSession_StartFailsWithoutValidSession(t *testing.T) {
	guard := &mockValidator{err: model.ErrUnauthenticated}
	feed := &mockRunner{}
	monitor := &mockRunner{}
	s := New(guard, feed, monitor, slog.Default())

	err := s.Start(context.Background())
	if !errors.Is(err, model.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}

	time.Sleep(20 * time.Millisecond)
	if feed.runs.Load() != 0 || monitor.runs.Load() != 0 {
		t.Error("検証失敗時は何も起動してはいけない")
	}
}

func TestSession_CloseStopsComponents(t *testing.T) {
	s := New(&mockValidator{}, &mockRunner{}, &mockRunner{}, slog.Default())

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Closeが全コンポーネントの終了を待って戻るはず")
	}

	// 二重Closeも安全
	s.Close()
}

func TestSession_DoubleStartRejected(t *testing.T) {
	s := New(&mockValidator{}, &mockRunner{}, &mockRunner{}, slog.Default())

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(context.Background()); err == nil {
		t.Error("二重Startはエラーになるはず")
	}
}
