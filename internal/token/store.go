// Package token は認証情報ペアのローカル永続化を提供する。
// 保存単位は(access_token, refresh_token)のペア1件のみで、
// 欠損・破損したペアはすべて「認証情報なし」として扱う。
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/sociosync/internal/model"
)

// Store は認証情報ペアをファイルに永続化する。
// 書き込みは一時ファイル+renameで行い、部分的なペアが観測されることはない。
// ファイルモード0600でユーザープロファイル外への漏洩を防ぐ。
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore は指定パスを保存先とするStoreを生成する。
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save は認証情報ペアをアトミックに保存する。
// 両フィールドが揃っていないペアは保存を拒否する。
func (s *Store) Save(cred model.Credential) error {
	if !cred.Valid() {
		return fmt.Errorf("不完全な認証情報は保存できません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("保存先ディレクトリの作成に失敗しました: %w", err)
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("認証情報のエンコードに失敗しました: %w", err)
	}

	// 一時ファイルに書き込んでからrenameすることで、
	// 中断されても旧ペアか新ペアのどちらか完全な状態だけが残る。
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("認証情報の書き込みに失敗しました: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ファイルモードの設定に失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("認証情報の保存に失敗しました: %w", err)
	}

	return nil
}

// Load は保存済みの認証情報ペアを返す。
// ファイルの不在・破損・不完全なペアはすべてmodel.ErrNoCredentialになる。
func (s *Store) Load() (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Credential{}, model.ErrNoCredential
		}
		return model.Credential{}, fmt.Errorf("認証情報の読み込みに失敗しました: %w", err)
	}

	var cred model.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		// 破損ファイルはログアウト状態として扱う
		return model.Credential{}, model.ErrNoCredential
	}
	if !cred.Valid() {
		return model.Credential{}, model.ErrNoCredential
	}

	return cred, nil
}

// Clear は保存済みの認証情報を削除する。未保存の場合は何もしない。
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("認証情報の削除に失敗しました: %w", err)
	}
	return nil
}
