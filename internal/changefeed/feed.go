package changefeed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/sociosync/internal/directus"
	"github.com/hitoshi/sociosync/internal/metrics"
	"github.com/hitoshi/sociosync/internal/model"
	"github.com/hitoshi/sociosync/internal/roster"
)

const (
	defaultPollInterval      = 10 * time.Second
	defaultWatchdogGrace     = 12 * time.Second
	defaultReconnectInterval = 2 * time.Second
)

// Lister はデータセットの全件一覧と単件取得を提供する。
type Lister interface {
	ListMembers(ctx context.Context) ([]model.Member, error)
	FetchMember(ctx context.Context, id model.MemberID) (*model.Member, error)
}

// Subscription はアクティブなプッシュ購読を表す。
// Eventsの返すチャネルはソケットが閉じられるとクローズされる。
type Subscription interface {
	Events() <-chan directus.Event
	Close()
}

// Opener はプッシュチャネルを開き購読を確立する。
type Opener interface {
	Open(ctx context.Context, accessToken string) (Subscription, error)
}

// Renewer は再接続前のトークン更新を提供する。
type Renewer interface {
	Renew(ctx context.Context) error
}

// TokenSource は現在のアクセストークンを提供する。
type TokenSource interface {
	Token() string
}

// Sanitizer は取り込むレコードのテキストフィールドを無害化する。
type Sanitizer interface {
	SanitizeMember(member *model.Member)
}

// NewRealtimeOpener はdirectus.RealtimeをOpenerとして包む。
func NewRealtimeOpener(rt *directus.Realtime) Opener {
	return realtimeOpener{rt: rt}
}

type realtimeOpener struct {
	rt *directus.Realtime
}

func (o realtimeOpener) Open(ctx context.Context, accessToken string) (Subscription, error) {
	sub, err := o.rt.Subscribe(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return realtimeSubscription{sub: sub}, nil
}

type realtimeSubscription struct {
	sub *directus.Subscription
}

func (s realtimeSubscription) Events() <-chan directus.Event { return s.sub.Events }
func (s realtimeSubscription) Close()                        { s.sub.Close() }

// Options はFeedの依存と調整値。
type Options struct {
	Cache     *roster.Cache
	Lister    Lister
	Opener    Opener
	Renewer   Renewer
	Tokens    TokenSource
	Sanitizer Sanitizer
	Clock     Clock
	Recorder  metrics.Recorder
	Logger    *slog.Logger

	// PollInterval はポーリングモードでの全件再取得間隔（既定10秒）。
	PollInterval time.Duration
	// WatchdogGrace は購読確立後、最初のイベントを待つ猶予時間（既定12秒）。
	WatchdogGrace time.Duration
	// ReconnectInterval はプッシュチャネルの再接続試行の最小間隔（既定2秒）。
	ReconnectInterval time.Duration
}

// Feed はプッシュ購読とポーリングを切り替えながら
// リモートデータセットの変更をRosterCacheへ反映する常駐コンポーネント。
// モード遷移はRunを実行する単一のゴルーチン上でのみ行われる。
type Feed struct {
	cache     *roster.Cache
	lister    Lister
	opener    Opener
	renewer   Renewer
	tokens    TokenSource
	sanitizer Sanitizer
	clock     Clock
	recorder  metrics.Recorder
	logger    *slog.Logger

	pollInterval  time.Duration
	watchdogGrace time.Duration
	limiter       *rate.Limiter

	mu   sync.RWMutex
	mode Mode
}

// New はFeedを生成する。ClockとRecorderは省略可能で、
// 未指定の場合は実時間クロックとNopレコーダーを使う。
func New(opts Options) *Feed {
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.WatchdogGrace <= 0 {
		opts.WatchdogGrace = defaultWatchdogGrace
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	return &Feed{
		cache:         opts.Cache,
		lister:        opts.Lister,
		opener:        opts.Opener,
		renewer:       opts.Renewer,
		tokens:        opts.Tokens,
		sanitizer:     opts.Sanitizer,
		clock:         opts.Clock,
		recorder:      opts.Recorder,
		logger:        opts.Logger,
		pollInterval:  opts.PollInterval,
		watchdogGrace: opts.WatchdogGrace,
		limiter:       rate.NewLimiter(rate.Every(opts.ReconnectInterval), 1),
		mode:          ModeConnecting,
	}
}

// Mode は現在の動作モードを返す。
func (f *Feed) Mode() Mode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mode
}

// transition はモードを遷移させる。遷移はすべてここを通る。
func (f *Feed) transition(to Mode) {
	f.mu.Lock()
	from := f.mode
	f.mode = to
	f.mu.Unlock()

	if from == to {
		return
	}
	f.logger.Info("フィードモードを遷移しました",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	f.recorder.RecordModeTransition(to.String())
	f.recorder.SetCurrentMode(to.String())
}

// Refresh は全件一覧を取得しキャッシュを全置換する。
// ポーリングサイクルのほか、ポーリングモード中の書き込み直後にも呼ばれる。
func (f *Feed) Refresh(ctx context.Context) error {
	members, err := f.lister.ListMembers(ctx)
	if err != nil {
		return err
	}
	if f.sanitizer != nil {
		for i := range members {
			f.sanitizer.SanitizeMember(&members[i])
		}
	}
	f.cache.ReplaceAll(members)
	return nil
}

// Run はフィードのメインループを実行する。コンテキストのキャンセルまで
// 接続サイクル（接続→プッシュ/ポーリング→再接続）を繰り返す。
func (f *Feed) Run(ctx context.Context) {
	f.logger.Info("チェンジフィードを開始します",
		slog.Duration("poll_interval", f.pollInterval),
		slog.Duration("watchdog_grace", f.watchdogGrace),
	)

	// 初回ロード。失敗しても以降のサイクルで埋まる
	if err := f.Refresh(ctx); err != nil {
		f.logger.Warn("初回ロードに失敗しました", slog.String("error", err.Error()))
	}

	for ctx.Err() == nil {
		f.runCycle(ctx)
	}
	f.logger.Info("チェンジフィードを停止しました")
}

// runCycle は1接続サイクル分を実行する。再接続が必要になるか
// コンテキストがキャンセルされると戻る。
func (f *Feed) runCycle(ctx context.Context) {
	f.transition(ModeConnecting)
	if err := f.limiter.Wait(ctx); err != nil {
		return
	}

	var (
		events   <-chan directus.Event
		watchdog <-chan time.Time
	)

	// プッシュ不通による縮退かどうか。この縮退中はポーリング周期ごとに
	// プッシュの再確立を試みる。再取得より短い間隔では再試行しない
	retryPush := false

	sub, err := f.opener.Open(ctx, f.tokens.Token())
	if err != nil {
		f.logger.Warn("プッシュチャネルを確立できないためポーリングへ縮退します",
			slog.String("error", err.Error()),
		)
		f.transition(ModePoll)
		retryPush = true
	} else {
		defer sub.Close()
		events = sub.Events()
		watchdog = f.clock.After(f.watchdogGrace)
		f.transition(ModePush)
	}

	var poll Ticker
	var pollC <-chan time.Time
	startPoll := func() {
		if poll == nil {
			poll = f.clock.NewTicker(f.pollInterval)
			pollC = poll.C()
		}
	}
	defer func() {
		if poll != nil {
			poll.Stop()
		}
	}()
	if f.Mode() == ModePoll {
		startPoll()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-watchdog:
			// 購読は確立したがイベントが一度も届かない。ソケットは
			// 維持したままポーリングへ縮退する（遅延イベントは引き続き適用）
			watchdog = nil
			f.logger.Warn("猶予時間内にプッシュイベントが届かないためポーリングへ縮退します",
				slog.Duration("grace", f.watchdogGrace),
			)
			f.transition(ModePoll)
			startPoll()

		case <-pollC:
			f.recorder.RecordPollCycle()
			if err := f.Refresh(ctx); err != nil {
				f.recorder.RecordPollFailure()
				f.logger.Warn("ポーリング再取得に失敗しました（次回再試行）",
					slog.String("error", err.Error()),
				)
			}
			if retryPush {
				// 再取得を済ませたうえでプッシュの再確立を試みる
				f.recorder.RecordReconnect()
				return
			}

		case ev, ok := <-events:
			if !ok {
				// ソケット切断。期限切れトークンで再接続しても拒否される
				// だけなので、先にトークンを更新してからサイクルを抜ける
				events = nil
				f.logger.Info("プッシュチャネルが切断されたため再接続します")
				if err := f.renewer.Renew(ctx); err != nil {
					f.logger.Warn("再接続前のトークン更新に失敗しました",
						slog.String("error", err.Error()),
					)
				}
				f.recorder.RecordReconnect()
				return
			}
			if f.applyEvent(ctx, ev) && watchdog != nil {
				// 実イベントの到着でプッシュチャネルの健全性が確認できた
				watchdog = nil
			}
		}
	}
}

// applyEvent は受信イベントをキャッシュに適用する。
// 1件以上の変更を適用できた場合にtrueを返す。
func (f *Feed) applyEvent(ctx context.Context, ev directus.Event) bool {
	switch ev.Event {
	case "init":
		// 購読確立応答。データ変更ではない
		return false
	case "create", "update", "delete":
	default:
		f.recorder.RecordEventDiscarded("unknown_kind")
		f.logger.Warn("不明な種別のイベントを破棄しました", slog.String("event", ev.Event))
		return false
	}

	changes := extractChanges(ev)
	if len(changes) == 0 {
		f.recorder.RecordEventDiscarded("missing_id")
		f.logger.Warn("識別子を抽出できないイベントを破棄しました", slog.String("event", ev.Event))
		return false
	}

	applied := false
	for _, ch := range changes {
		if ev.Event == "delete" {
			// 既に存在しないIDの削除は何もしない
			f.cache.Remove(ch.id)
			f.recorder.RecordEventApplied("delete")
			applied = true
			continue
		}

		member := ch.record
		if member == nil {
			// 本体を伴わないイベントは単件取得で補完する
			fetched, err := f.lister.FetchMember(ctx, ch.id)
			if err != nil {
				f.recorder.RecordEventDiscarded("point_fetch_failed")
				f.logger.Warn("イベント対象の単件取得に失敗しました",
					slog.String("id", ch.id.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			member = fetched
		}
		if f.sanitizer != nil {
			f.sanitizer.SanitizeMember(member)
		}
		f.cache.Upsert(*member)
		f.recorder.RecordEventApplied(ev.Event)
		applied = true
	}
	return applied
}
