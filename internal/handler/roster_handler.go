// Package handler はブラウザUI向けのローカルHTTP APIを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sociosync/internal/changefeed"
	"github.com/hitoshi/sociosync/internal/middleware"
	"github.com/hitoshi/sociosync/internal/model"
	"github.com/hitoshi/sociosync/internal/roster"
)

// defaultPageSize はpage_size未指定時のページサイズ。
const defaultPageSize = 25

// CrudGateway はバックエンドへのCRUD委譲のインターフェース。
type CrudGateway interface {
	// CreateMember は会員を新規作成し、バックエンドが採番したIDを返す。
	CreateMember(ctx context.Context, member *model.Member) (model.MemberID, error)
	// UpdateMember は指定IDの会員を部分更新する。
	UpdateMember(ctx context.Context, id model.MemberID, patch map[string]any) error
	// DeleteMember は指定IDの会員を削除する。
	DeleteMember(ctx context.Context, id model.MemberID) error
}

// FeedStatus はチェンジフィードの状態参照と明示的な再取得のインターフェース。
type FeedStatus interface {
	// Mode は現在の動作モードを返す。
	Mode() changefeed.Mode
	// Refresh は全件再取得でキャッシュを全置換する。
	Refresh(ctx context.Context) error
}

// RosterHandler は会員名簿のHTTPハンドラー。
// 読み取りはキャッシュのみから行い、書き込みはバックエンドへ委譲する。
type RosterHandler struct {
	cache   *roster.Cache
	gateway CrudGateway
	feed    FeedStatus
	logger  *slog.Logger
}

// NewRosterHandler はRosterHandlerを生成する。
func NewRosterHandler(cache *roster.Cache, gateway CrudGateway, feed FeedStatus, logger *slog.Logger) *RosterHandler {
	return &RosterHandler{
		cache:   cache,
		gateway: gateway,
		feed:    feed,
		logger:  logger,
	}
}

// rosterResponse は名簿ページのAPIレスポンス。
// ページビューに加え、UIが同期状態を表示するための現在モードを含む。
type rosterResponse struct {
	roster.PageResult
	Mode string `json:"mode"`
}

// createMemberResponse は会員作成のAPIレスポンス。
type createMemberResponse struct {
	ID model.MemberID `json:"id"`
}

// GetRoster は名簿のページビューを返す。
// GET /api/roster?page=&page_size=
// ページ番号は現在のデータセット長に対してクランプされる。
func (h *RosterHandler) GetRoster(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPageError("pageは整数で指定してください"))
		return
	}
	pageSize, err := queryInt(r, "page_size", defaultPageSize)
	if err != nil || pageSize < 1 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPageError("page_sizeは1以上の整数で指定してください"))
		return
	}

	result := h.cache.Page(page, pageSize)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rosterResponse{
		PageResult: result,
		Mode:       h.feed.Mode().String(),
	})
}

// CreateMember は会員の新規作成をバックエンドへ委譲する。
// POST /api/roster
// 成功時もキャッシュは直接変更しない。プッシュモードではフィードの
// エコーで反映され、ポーリングモードでは明示的な再取得を行う。
func (h *RosterHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var member model.Member
	if err := json.NewDecoder(r.Body).Decode(&member); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidMemberError("リクエストボディの解析に失敗しました"))
		return
	}
	if member.FirstNames == "" && member.LastNames == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidMemberError("氏名が空です"))
		return
	}
	// 主キーはバックエンドが採番する
	member.ID = ""

	id, err := h.gateway.CreateMember(r.Context(), &member)
	if err != nil {
		h.handleGatewayError(w, "", err)
		return
	}

	h.refreshIfPolling(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createMemberResponse{ID: id})
}

// UpdateMember は会員の部分更新をバックエンドへ委譲する。
// PATCH /api/roster/:id
func (h *RosterHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id := model.MemberID(chi.URLParam(r, "id"))

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidMemberError("リクエストボディの解析に失敗しました"))
		return
	}
	// 主キーの書き換えは受け付けない
	delete(patch, "ID_Socio")
	if len(patch) == 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidMemberError("更新内容が空です"))
		return
	}

	if err := h.gateway.UpdateMember(r.Context(), id, patch); err != nil {
		h.handleGatewayError(w, id, err)
		return
	}

	h.refreshIfPolling(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// DeleteMember は会員の削除をバックエンドへ委譲する。
// DELETE /api/roster/:id
func (h *RosterHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id := model.MemberID(chi.URLParam(r, "id"))

	if err := h.gateway.DeleteMember(r.Context(), id); err != nil {
		h.handleGatewayError(w, id, err)
		return
	}

	h.refreshIfPolling(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// refreshIfPolling はポーリングモード時のみ、書き込み成功直後に
// 明示的な再取得を行う。プッシュモードではフィードのエコーに任せる。
// 再取得の失敗は次のポーリングサイクルで吸収されるためログのみ。
func (h *RosterHandler) refreshIfPolling(ctx context.Context) {
	if h.feed.Mode() != changefeed.ModePoll {
		return
	}
	if err := h.feed.Refresh(ctx); err != nil {
		h.logger.Warn("書き込み後の再取得に失敗しました", slog.String("error", err.Error()))
	}
}

// handleGatewayError はバックエンド委譲のエラーをHTTPレスポンスへ変換する。
// 書き込み失敗時にキャッシュへの楽観的反映は行っていないため、
// エラーをそのまま返せば整合性は保たれる。
func (h *RosterHandler) handleGatewayError(w http.ResponseWriter, id model.MemberID, err error) {
	switch {
	case errors.Is(err, model.ErrAuthExpired), errors.Is(err, model.ErrUnauthenticated):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
	case errors.Is(err, model.ErrMemberNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewMemberNotFoundError(id))
	default:
		h.logger.Error("バックエンドへの委譲に失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewWriteFailedError(err.Error()))
	}
}

// queryInt はクエリパラメータを整数として読み取る。未指定時はデフォルト値を返す。
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
