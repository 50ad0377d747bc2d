// Package security はアプリケーションのセキュリティ機能を提供する。
//
// FieldSanitizerService はバックエンド由来の会員レコードのテキストフィールドを
// サニタイズし、ブラウザUIへ渡る前にXSSリスクを除去する。
// bluemondayライブラリのStrictPolicyを使用し、HTMLタグを一切通過させない。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/sociosync/internal/model"
)

// FieldSanitizerService は会員レコードのサニタイズ機能のインターフェースを定義する。
// キャッシュへの取り込み時（全件ロード・プッシュイベント適用）に使用される。
type FieldSanitizerService interface {
	// SanitizeText はテキストフィールド1つをサニタイズする。
	// すべてのHTMLタグを除去し、前後の空白を取り除く。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
	// SanitizeMember は会員レコードの全テキストフィールドを
	// その場でサニタイズする。識別子には手を付けない。
	SanitizeMember(member *model.Member)
}

// fieldSanitizer はFieldSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type fieldSanitizer struct {
	policy *bluemonday.Policy
}

// NewFieldSanitizer はFieldSanitizerServiceの新しいインスタンスを生成する。
// 会員データは氏名・住所などのプレーンテキストであり、HTMLとして
// 表示する正当な理由がないため、タグを一切許可しないStrictPolicyを使う。
func NewFieldSanitizer() *fieldSanitizer {
	return &fieldSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はテキストフィールド1つをサニタイズする。
func (s *fieldSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// SanitizeMember は会員レコードの全テキストフィールドをその場でサニタイズする。
func (s *fieldSanitizer) SanitizeMember(member *model.Member) {
	member.FirstNames = s.SanitizeText(member.FirstNames)
	member.LastNames = s.SanitizeText(member.LastNames)
	member.NationalID = s.SanitizeText(member.NationalID)
	member.BirthDate = s.SanitizeText(member.BirthDate)
	member.Address = s.SanitizeText(member.Address)
	member.Phone = s.SanitizeText(member.Phone)
	member.Email = s.SanitizeText(member.Email)
	member.JoinedAt = s.SanitizeText(member.JoinedAt)
	member.Status = s.SanitizeText(member.Status)
}
