package model

import (
	"errors"
	"fmt"
)

// センチネルエラー。認証・同期のコアが状態遷移の判定に使用する。
var (
	// ErrAuthExpired はアクセストークンが無効または期限切れであることを示す。
	ErrAuthExpired = errors.New("アクセストークンが無効または期限切れです")
	// ErrNoCredential は認証情報が保存されていないことを示す。
	ErrNoCredential = errors.New("認証情報が保存されていません")
	// ErrRenewalRejected はトークン更新がバックエンドに確定的に拒否されたことを示す。
	// 一時的なネットワークエラーとは区別され、この場合のみ強制ログアウトに至る。
	ErrRenewalRejected = errors.New("トークン更新が拒否されました")
	// ErrUnauthenticated は再認証が必要な状態を示す。
	ErrUnauthenticated = errors.New("再認証が必要です")
	// ErrMemberNotFound は指定された会員が存在しないことを示す。
	ErrMemberNotFound = errors.New("会員が見つかりません")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeMemberNotFound  = "MEMBER_NOT_FOUND"
	ErrCodeInvalidMember   = "INVALID_MEMBER"
	ErrCodeInvalidPage     = "INVALID_PAGE"
	ErrCodeWriteFailed     = "WRITE_FAILED"
	ErrCodeBackendDown     = "BACKEND_UNAVAILABLE"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewUnauthenticatedError は再認証が必要なことを示すエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewMemberNotFoundError は会員未検出エラーを生成する。
func NewMemberNotFoundError(id MemberID) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("指定された会員が見つかりません: %s", id),
		Category: "sync",
		Action:   "会員IDを確認してください。",
	}
}

// NewInvalidMemberError は会員レコードのバリデーションエラーを生成する。
func NewInvalidMemberError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMember,
		Message:  fmt.Sprintf("会員レコードが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidPageError はページ指定のバリデーションエラーを生成する。
func NewInvalidPageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPage,
		Message:  fmt.Sprintf("ページ指定が不正です: %s", reason),
		Category: "validation",
		Action:   "page は1以上、page_size は1以上を指定してください。",
	}
}

// NewWriteFailedError は書き込み失敗エラーを生成する。
// 楽観的なローカル反映は行わないため、失敗時のキャッシュは未変更のまま。
func NewWriteFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWriteFailed,
		Message:  fmt.Sprintf("バックエンドへの書き込みに失敗しました: %s", reason),
		Category: "sync",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録し、
// レスポンスには一般的なメッセージだけを載せる。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewBackendDownError はバックエンド接続不能エラーを生成する。
func NewBackendDownError() *APIError {
	return &APIError{
		Code:     ErrCodeBackendDown,
		Message:  "バックエンドに接続できません。",
		Category: "system",
		Action:   "ネットワーク接続とバックエンドの稼働状況を確認してください。",
	}
}
