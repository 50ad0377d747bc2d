// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MemberID は会員レコードの主キーを表す。
// バックエンドによって数値・文字列どちらで返される場合もあるため、
// JSONデコード時に両方を受け付けて文字列に正規化する。
type MemberID string

// UnmarshalJSON はJSON文字列または数値をMemberIDにデコードする。
func (id *MemberID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = MemberID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("会員IDのデコードに失敗しました: %w", err)
	}
	*id = MemberID(n.String())
	return nil
}

// String はIDを文字列として返す。
func (id MemberID) String() string {
	return string(id)
}

// Member は会員（socio）レコードを表す。
// フィールド名はバックエンドのsociosコレクションのカラム名に対応する。
type Member struct {
	ID         MemberID `json:"ID_Socio"`
	FirstNames string   `json:"Nombres_Completos"`
	LastNames  string   `json:"Apellidos_Completos"`
	NationalID string   `json:"Cedula_Identidad"`
	BirthDate  string   `json:"Fecha_Nacimiento,omitempty"`
	Address    string   `json:"Direccion_Domicilio,omitempty"`
	Phone      string   `json:"Telefono_Celular,omitempty"`
	Email      string   `json:"Correo_Electronico,omitempty"`
	JoinedAt   string   `json:"Fecha_Ingreso,omitempty"`
	Status     string   `json:"Estado_Socio,omitempty"`
}

// DisplayName は一覧表示用の氏名を返す。
func (m *Member) DisplayName() string {
	if m.FirstNames == "" {
		return m.LastNames
	}
	if m.LastNames == "" {
		return m.FirstNames
	}
	return m.FirstNames + " " + m.LastNames
}

// Credential はアクセストークンとリフレッシュトークンのペアを表す。
// 両方が揃っている場合のみ有効。片方でも欠けたペアは「認証情報なし」として扱う。
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Valid は両トークンが揃っているかを返す。
func (c Credential) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}
