// Package roster は会員データセットのインメモリキャッシュを提供する。
// データセットの変更はChangeFeed由来のイベントと明示的な全置換のみで行われ、
// UIはページ分割されたビューを通して読み取る。
package roster

import (
	"sync"

	"github.com/hitoshi/sociosync/internal/model"
)

// PageResult はページ分割されたビューの1ページ分を表す。
// 保存された状態ではなく、読み取りのたびにデータセット長から再計算される。
// Pageはクランプ後の実効ページ番号（1始まり）。
type PageResult struct {
	Members    []model.Member `json:"members"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
	Total      int            `json:"total"`
	Version    uint64         `json:"version"`
}

// Cache は順序付き会員データセットのインメモリキャッシュ。
// 数百件規模を対象とするためO(n)走査で十分。
// 変更操作はロック内でI/Oを行わず、途中状態が観測されることはない。
type Cache struct {
	mu       sync.RWMutex
	members  []model.Member
	version  uint64
	onChange func()
}

// NewCache は空のCacheを生成する。
func NewCache() *Cache {
	return &Cache{}
}

// SetOnChange はデータセットが実際に変化したときに呼ばれるコールバックを登録する。
// 現在ページの再描画トリガーとして使う。コールバックはロック外で呼ばれる。
func (c *Cache) SetOnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// ReplaceAll はデータセットを全置換する。初回ロードとポーリング再取得で使う。
// 重複IDは先勝ちで除去し、識別子集合が厳密な集合であることを保証する。
func (c *Cache) ReplaceAll(members []model.Member) {
	deduped := make([]model.Member, 0, len(members))
	seen := make(map[model.MemberID]struct{}, len(members))
	for _, m := range members {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		deduped = append(deduped, m)
	}

	c.mu.Lock()
	c.members = deduped
	c.version++
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Upsert は識別子一致でレコードを置換し、存在しなければ先頭に挿入する。
func (c *Cache) Upsert(member model.Member) {
	c.mu.Lock()
	replaced := false
	for i := range c.members {
		if c.members[i].ID == member.ID {
			c.members[i] = member
			replaced = true
			break
		}
	}
	if !replaced {
		c.members = append([]model.Member{member}, c.members...)
	}
	c.version++
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Remove は指定IDのレコードを削除する。存在しない場合は何もしない。
// 削除が発生した場合のみ変更通知を発火する。
func (c *Cache) Remove(id model.MemberID) bool {
	c.mu.Lock()
	removed := false
	for i := range c.members {
		if c.members[i].ID == id {
			c.members = append(c.members[:i], c.members[i+1:]...)
			removed = true
			break
		}
	}
	var fn func()
	if removed {
		c.version++
		fn = c.onChange
	}
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return removed
}

// Page は現在のデータセットに対するページビューを返す。純粋な読み取り。
// pageSizeはユーザーが変更できるため、クランプは変更時ではなく読み取りのたびに行う。
// pageIndexは[1, ceil(len/pageSize)]にクランプされる。
func (c *Cache) Page(index, size int) PageResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if size <= 0 {
		size = 1
	}

	total := len(c.members)
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}

	if index < 1 {
		index = 1
	}
	if index > totalPages {
		index = totalPages
	}

	start := (index - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	page := make([]model.Member, end-start)
	copy(page, c.members[start:end])

	return PageResult{
		Members:    page,
		Page:       index,
		PageSize:   size,
		TotalPages: totalPages,
		Total:      total,
		Version:    c.version,
	}
}

// Len は現在のデータセット件数を返す。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Version はデータセットの変更世代を返す。変更のたびに単調増加する。
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}
