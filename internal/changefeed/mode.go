// Package changefeed はリモートデータセットの変更をローカルキャッシュへ
// 反映するチェンジフィードを提供する。プッシュ購読を優先し、
// 利用できない場合はポーリングへ段階的に縮退する。
package changefeed

// Mode はチェンジフィードの動作モードを表す。常にちょうど1つがアクティブ。
type Mode int

const (
	// ModeConnecting はプッシュチャネルの接続試行中を示す。
	ModeConnecting Mode = iota
	// ModePush はプッシュ購読でイベントを受信している状態を示す。
	ModePush
	// ModePoll は一定間隔の全件再取得に縮退した状態を示す。
	ModePoll
)

// String はメトリクスラベル・ログ用のモード名を返す。
func (m Mode) String() string {
	switch m {
	case ModeConnecting:
		return "connecting"
	case ModePush:
		return "push"
	case ModePoll:
		return "poll"
	default:
		return "unknown"
	}
}
