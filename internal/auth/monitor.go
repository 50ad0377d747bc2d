package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/sociosync/internal/model"
)

// Monitor は認証情報の予防更新を行う常駐ループ。
// ユーザー操作とは独立に一定間隔（既定5分）で更新を試み、
// 呼び出し側がトークンの期限切れを観測する前に更新を済ませる。
// プロセスにつき1インスタンスのみ起動する。
type Monitor struct {
	renewer  *Renewer
	store    CredentialStore
	interval time.Duration
	logger   *slog.Logger

	// onForcedLogout は更新が確定的に拒否されたときに1回だけ呼ばれる。
	// UI層の再認証リダイレクトに相当する。
	onForcedLogout func()
}

// NewMonitor はMonitorを生成する。
// intervalが0以下の場合はデフォルト5分を使用する。
func NewMonitor(renewer *Renewer, store CredentialStore, interval time.Duration, logger *slog.Logger, onForcedLogout func()) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Monitor{
		renewer:        renewer,
		store:          store,
		interval:       interval,
		logger:         logger,
		onForcedLogout: onForcedLogout,
	}
}

// Run は更新ループを開始する。コンテキストのキャンセルか、
// 更新の確定的な拒否（強制ログアウト）まで実行を継続する。
// 個々のサイクルの一時的な失敗ではループを止めない。
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("トークン監視ループを開始しました",
		slog.Duration("interval", m.interval),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("トークン監視ループを停止しました")
			return
		case <-ticker.C:
			if !m.runOnce(ctx) {
				return
			}
		}
	}
}

// runOnce は1サイクル分の更新を実行する。ループを継続すべきかを返す。
func (m *Monitor) runOnce(ctx context.Context) bool {
	// ログアウト競合: 認証情報がなければ何もせず次のサイクルへ
	if _, err := m.store.Load(); errors.Is(err, model.ErrNoCredential) {
		return true
	}

	err := m.renewer.Renew(ctx)
	switch {
	case err == nil:
		return true
	case errors.Is(err, model.ErrNoCredential):
		// Load後・Renew前にログアウトされたケース
		return true
	case errors.Is(err, model.ErrRenewalRejected):
		// 確定的な拒否のみが強制ログアウトに至る
		if cerr := m.store.Clear(); cerr != nil {
			m.logger.Warn("認証情報のクリアに失敗しました", slog.String("error", cerr.Error()))
		}
		m.logger.Warn("トークン更新が拒否されたため再認証が必要です",
			slog.String("error", err.Error()),
		)
		if m.onForcedLogout != nil {
			m.onForcedLogout()
		}
		return false
	default:
		// ネットワーク等の一時的な失敗。次のサイクルで再試行する
		m.logger.Warn("トークン更新サイクルが失敗しました（次回再試行）",
			slog.String("error", err.Error()),
		)
		return true
	}
}
