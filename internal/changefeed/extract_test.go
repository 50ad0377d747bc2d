package changefeed

import (
	"encoding/json"
	"testing"

	"github.com/hitoshi/sociosync/internal/directus"
	"github.com/hitoshi/sociosync/internal/model"
)

func TestExtractChanges(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		keys     string
		wantIDs  []model.MemberID
		wantBody bool // 全件にレコード本体が付くか
	}{
		{
			name:     "完全レコードの配列",
			data:     `[{"ID_Socio":5,"Nombres_Completos":"Ana","Apellidos_Completos":"Gómez"}]`,
			wantIDs:  []model.MemberID{"5"},
			wantBody: true,
		},
		{
			name:     "複数レコードの配列",
			data:     `[{"ID_Socio":"a1"},{"ID_Socio":"a2"}]`,
			wantIDs:  []model.MemberID{"a1", "a2"},
			wantBody: true,
		},
		{
			name:    "keysフィールドのキー値のみ",
			keys:    `[7,"8"]`,
			wantIDs: []model.MemberID{"7", "8"},
		},
		{
			name:    "dataがキー値の配列",
			data:    `[5,6]`,
			wantIDs: []model.MemberID{"5", "6"},
		},
		{
			name:     "主キー付き単一オブジェクト",
			data:     `{"ID_Socio":9,"Nombres_Completos":"Luis"}`,
			wantIDs:  []model.MemberID{"9"},
			wantBody: true,
		},
		{
			name:    "識別子のないレコード配列は破棄",
			data:    `[{"Nombres_Completos":"sin id"}]`,
			wantIDs: nil,
		},
		{
			name:    "識別子のない単一オブジェクトは破棄",
			data:    `{"Nombres_Completos":"sin id"}`,
			wantIDs: nil,
		},
		{
			name:    "ペイロードなしは破棄",
			wantIDs: nil,
		},
		{
			name:    "不正なJSONは破棄",
			data:    `{{{`,
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := directus.Event{Event: "update"}
			if tt.data != "" {
				ev.Data = json.RawMessage(tt.data)
			}
			if tt.keys != "" {
				ev.Keys = json.RawMessage(tt.keys)
			}

			changes := extractChanges(ev)
			if len(changes) != len(tt.wantIDs) {
				t.Fatalf("抽出件数 = %d, want %d", len(changes), len(tt.wantIDs))
			}
			for i, ch := range changes {
				if ch.id != tt.wantIDs[i] {
					t.Errorf("changes[%d].id = %q, want %q", i, ch.id, tt.wantIDs[i])
				}
				if tt.wantBody && ch.record == nil {
					t.Errorf("changes[%d]: レコード本体が付くはず", i)
				}
				if !tt.wantBody && ch.record != nil {
					t.Errorf("changes[%d]: キーのみの形状に本体が付いた", i)
				}
			}
		})
	}
}

func TestExtractChanges_RecordArrayWinsOverKeys(t *testing.T) {
	// 複数形状が同居する場合はレコード本体付きの戦略を優先する
	ev := directus.Event{
		Event: "update",
		Data:  json.RawMessage(`[{"ID_Socio":1,"Nombres_Completos":"Ana"}]`),
		Keys:  json.RawMessage(`[2]`),
	}
	changes := extractChanges(ev)
	if len(changes) != 1 || changes[0].id != "1" || changes[0].record == nil {
		t.Fatalf("本体付きの抽出が優先されるはず: %+v", changes)
	}
}
