// Package auth は認証情報のライフサイクル管理を提供する。
// トークンの予防更新（Monitor）、オンデマンド検証（Guard）、
// 更新操作の一本化（Renewer）を含む。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/sociosync/internal/metrics"
	"github.com/hitoshi/sociosync/internal/model"
)

// CredentialStore は認証情報ペアの永続化インターフェース。
type CredentialStore interface {
	Save(cred model.Credential) error
	Load() (model.Credential, error)
	Clear() error
}

// TokenExchanger はリフレッシュトークンの交換と
// ライブクライアントへのトークン反映を行うインターフェース。
type TokenExchanger interface {
	Refresh(ctx context.Context, refreshToken string) (model.Credential, error)
	SetToken(token string)
}

// Renewer はトークン更新操作を提供する。
// 同時に呼ばれた更新はsingleflightで1回の交換にまとめられる。
// リフレッシュトークンのローテーション方式では同一トークンで2回交換すると
// 先行の交換が無効化されるため、この一本化は正しさの要件になる。
type Renewer struct {
	store    CredentialStore
	client   TokenExchanger
	logger   *slog.Logger
	recorder metrics.Recorder

	group singleflight.Group
}

// NewRenewer はRenewerを生成する。
func NewRenewer(store CredentialStore, client TokenExchanger, logger *slog.Logger, recorder metrics.Recorder) *Renewer {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Renewer{
		store:    store,
		client:   client,
		logger:   logger,
		recorder: recorder,
	}
}

// Renew は保存済みのリフレッシュトークンを新しいペアに交換する。
// リフレッシュトークンが未保存の場合はネットワークを使わず即時失敗する。
// 成功時は新ペアを永続化し、ライブクライアントのアクセストークンを差し替える。
// 失敗時に部分的なペアが保存されることはない。
func (r *Renewer) Renew(ctx context.Context) error {
	_, err, _ := r.group.Do("renew", func() (any, error) {
		cred, err := r.store.Load()
		if err != nil {
			return nil, err
		}

		newCred, err := r.client.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			r.recorder.RecordRenewalFailure()
			return nil, err
		}

		if err := r.store.Save(newCred); err != nil {
			r.recorder.RecordRenewalFailure()
			return nil, fmt.Errorf("更新後ペアの保存に失敗しました: %w", err)
		}
		r.client.SetToken(newCred.AccessToken)

		r.recorder.RecordRenewalSuccess()
		r.logger.Info("トークンを更新しました")
		return nil, nil
	})
	return err
}
