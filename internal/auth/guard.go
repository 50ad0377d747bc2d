package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/sociosync/internal/model"
)

// Prober は安価な認証付きプローブリクエストを実行するインターフェース。
type Prober interface {
	Probe(ctx context.Context) error
}

// Guard はセッションの有効性をオンデマンドで保証する。
// プローブが認証切れで失敗した場合は一度だけ更新を試み、
// 更新も失敗した場合はストアをクリアして「再認証が必要」を通知する。
type Guard struct {
	prober  Prober
	renewer *Renewer
	store   CredentialStore
	logger  *slog.Logger
}

// NewGuard はGuardを生成する。
func NewGuard(prober Prober, renewer *Renewer, store CredentialStore, logger *slog.Logger) *Guard {
	return &Guard{
		prober:  prober,
		renewer: renewer,
		store:   store,
		logger:  logger,
	}
}

// EnsureValid は認証付きプローブで現在の認証情報が使えることを確認する。
// 認証切れの場合は更新を1回だけ実行し、成功すれば再プローブなしで満たされたとみなす。
// 更新も失敗した場合はストアをクリアし、model.ErrUnauthenticatedを返す。
// 同時に複数呼ばれても更新交換はRenewer内で1回にまとめられる（冪等）。
func (g *Guard) EnsureValid(ctx context.Context) error {
	err := g.prober.Probe(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrAuthExpired) {
		// ネットワーク等の一時的失敗は認証状態の判断材料にしない
		return err
	}

	g.logger.Info("プローブが認証切れで失敗したため更新を試みます")

	if rerr := g.renewer.Renew(ctx); rerr != nil {
		if cerr := g.store.Clear(); cerr != nil {
			g.logger.Warn("認証情報のクリアに失敗しました", slog.String("error", cerr.Error()))
		}
		g.logger.Warn("トークン更新に失敗したため再認証が必要です",
			slog.String("error", rerr.Error()),
		)
		return fmt.Errorf("%w: %v", model.ErrUnauthenticated, rerr)
	}

	// 更新成功はプローブ成功と同等に扱う（再プローブはしない）
	return nil
}
