package changefeed

import (
	"encoding/json"

	"github.com/hitoshi/sociosync/internal/directus"
	"github.com/hitoshi/sociosync/internal/model"
)

// change は1イベントから抽出された1件分の変更。
// recordがnilでない場合は完全なレコード本体を伴う。
type change struct {
	id     model.MemberID
	record *model.Member
}

// extractChanges はイベントペイロードから変更対象を抽出する。
// バックエンドのペイロード形状は複数あるため、抽出戦略を
// 優先順に試し、最初に1件以上を得た戦略の結果を採用する。
// どの戦略も識別子を得られなければ空を返す（イベントは破棄対象）。
func extractChanges(ev directus.Event) []change {
	for _, extract := range []func(directus.Event) []change{
		extractRecordArray,
		extractBareKeys,
		extractKeyedObject,
	} {
		if changes := extract(ev); len(changes) > 0 {
			return changes
		}
	}
	return nil
}

// extractRecordArray はdataが完全レコードの配列である形状を処理する。
// 識別子を持たない要素は飛ばす。
func extractRecordArray(ev directus.Event) []change {
	if len(ev.Data) == 0 {
		return nil
	}
	var records []model.Member
	if err := json.Unmarshal(ev.Data, &records); err != nil {
		return nil
	}
	changes := make([]change, 0, len(records))
	for i := range records {
		if records[i].ID == "" {
			continue
		}
		rec := records[i]
		changes = append(changes, change{id: rec.ID, record: &rec})
	}
	return changes
}

// extractBareKeys はキー値のみの配列（本体なし）を処理する。
// keysフィールドを優先し、なければdataを同形状として試す。
func extractBareKeys(ev directus.Event) []change {
	for _, raw := range []json.RawMessage{ev.Keys, ev.Data} {
		if len(raw) == 0 {
			continue
		}
		var ids []model.MemberID
		if err := json.Unmarshal(raw, &ids); err != nil {
			continue
		}
		changes := make([]change, 0, len(ids))
		for _, id := range ids {
			if id == "" {
				continue
			}
			changes = append(changes, change{id: id})
		}
		if len(changes) > 0 {
			return changes
		}
	}
	return nil
}

// extractKeyedObject はdataが主キーを含む単一オブジェクトである形状を処理する。
func extractKeyedObject(ev directus.Event) []change {
	if len(ev.Data) == 0 {
		return nil
	}
	var record model.Member
	if err := json.Unmarshal(ev.Data, &record); err != nil {
		return nil
	}
	if record.ID == "" {
		return nil
	}
	return []change{{id: record.ID, record: &record}}
}
