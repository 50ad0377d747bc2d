package security

import (
	"strings"
	"testing"

	"github.com/hitoshi/sociosync/internal/model"
)

// TestSanitizeText_StripsAllTags はHTMLタグが一切通過しないことを検証する。
func TestSanitizeText_StripsAllTags(t *testing.T) {
	sanitizer := NewFieldSanitizer()

	tests := []struct {
		name       string
		input      string
		want       string
		wantAbsent []string
	}{
		{
			name:  "プレーンテキストはそのまま通過する",
			input: "María Fernández",
			want:  "María Fernández",
		},
		{
			name:       "scriptタグが除去される",
			input:      `Juan<script>alert('xss')</script>Pérez`,
			wantAbsent: []string{"<script", "alert"},
		},
		{
			name:       "整形タグも除去される",
			input:      "<strong>Ana</strong> <em>Gómez</em>",
			want:       "Ana Gómez",
			wantAbsent: []string{"<strong", "<em"},
		},
		{
			name:       "imgタグが除去される",
			input:      `<img src="https://example.com/x.png" onerror="alert(1)">Calle 10`,
			want:       "Calle 10",
			wantAbsent: []string{"<img", "onerror"},
		},
		{
			name:       "aタグはテキストのみ残る",
			input:      `<a href="javascript:alert(1)">Av. Principal</a>`,
			want:       "Av. Principal",
			wantAbsent: []string{"<a", "javascript:"},
		},
		{
			name:  "前後の空白が取り除かれる",
			input: "  0991234567  ",
			want:  "0991234567",
		},
		{
			name:  "空文字列は空文字列のまま",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizeText(tt.input)
			if tt.want != "" || len(tt.wantAbsent) == 0 {
				if got != tt.want {
					t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("SanitizeText(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

// TestSanitizeText_Idempotent は同一入力に対して常に同一出力（冪等性）を検証する。
func TestSanitizeText_Idempotent(t *testing.T) {
	sanitizer := NewFieldSanitizer()

	input := `<p>Luis</p> <script>x()</script> Ramírez`
	first := sanitizer.SanitizeText(input)
	second := sanitizer.SanitizeText(first)

	if first != second {
		t.Errorf("冪等性違反: 1回目=%q, 二重=%q", first, second)
	}
}

// TestSanitizeMember は全テキストフィールドが処理され、識別子が保持されることを検証する。
func TestSanitizeMember(t *testing.T) {
	sanitizer := NewFieldSanitizer()

	member := model.Member{
		ID:         "42",
		FirstNames: `<script>alert(1)</script>Ana`,
		LastNames:  "<b>Gómez</b>",
		NationalID: " 1712345678 ",
		BirthDate:  "1990-04-12",
		Address:    `<img src=x onerror=alert(1)>Calle 10`,
		Phone:      "0991234567",
		Email:      "ana@example.com",
		JoinedAt:   "2020-01-15",
		Status:     "<i>Activo</i>",
	}

	sanitizer.SanitizeMember(&member)

	if member.ID != "42" {
		t.Errorf("識別子は変更されないはず: %q", member.ID)
	}
	if member.FirstNames != "Ana" {
		t.Errorf("FirstNames = %q, want %q", member.FirstNames, "Ana")
	}
	if member.LastNames != "Gómez" {
		t.Errorf("LastNames = %q, want %q", member.LastNames, "Gómez")
	}
	if member.NationalID != "1712345678" {
		t.Errorf("NationalID = %q, want %q", member.NationalID, "1712345678")
	}
	if member.Address != "Calle 10" {
		t.Errorf("Address = %q, want %q", member.Address, "Calle 10")
	}
	if member.Status != "Activo" {
		t.Errorf("Status = %q, want %q", member.Status, "Activo")
	}
	if member.Email != "ana@example.com" || member.Phone != "0991234567" {
		t.Error("無害なフィールドはそのまま保持されるはず")
	}
}

// TestFieldSanitizerInterface はFieldSanitizerServiceインターフェースの適合を検証する。
func TestFieldSanitizerInterface(t *testing.T) {
	var _ FieldSanitizerService = NewFieldSanitizer()
}
