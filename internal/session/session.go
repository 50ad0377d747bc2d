// Package session は認証済みセッションのライフサイクルを束ねる。
// 認証の検証に成功してはじめてチェンジフィードとトークン監視を起動し、
// 終了時にはタイマーと購読をすべて解放する。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Validator は起動前の認証検証を提供する。
type Validator interface {
	EnsureValid(ctx context.Context) error
}

// Runner はセッション配下で常駐するコンポーネント。
// Runはコンテキストのキャンセルで戻らなければならない。
type Runner interface {
	Run(ctx context.Context)
}

// Session は認証済みセッションを表す。
// チェンジフィードとトークン監視の起動・停止を所有する。
type Session struct {
	guard   Validator
	feed    Runner
	monitor Runner
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    sync.WaitGroup
	started bool
}

// New はSessionを生成する。
func New(guard Validator, feed Runner, monitor Runner, logger *slog.Logger) *Session {
	return &Session{
		guard:   guard,
		feed:    feed,
		monitor: monitor,
		logger:  logger,
	}
}

// Start は認証を検証し、成功した場合のみ常駐コンポーネントを起動する。
// 検証に失敗した場合は何も起動せずエラーを返す。
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("セッションは既に開始されています")
	}

	// フィードは有効な認証の上でしか動かさない
	if err := s.guard.EnsureValid(ctx); err != nil {
		return fmt.Errorf("セッションを開始できません: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.done.Add(2)
	go func() {
		defer s.done.Done()
		s.monitor.Run(runCtx)
	}()
	go func() {
		defer s.done.Done()
		s.feed.Run(runCtx)
	}()

	s.logger.Info("セッションを開始しました")
	return nil
}

// Close は常駐コンポーネントを停止し、終了を待つ。複数回呼んでも安全。
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.done.Wait()
	s.logger.Info("セッションを終了しました")
}
