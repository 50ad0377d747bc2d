package changefeed

import "time"

// Clock はフィードが使うタイマー類の抽象。
// テストでは偽クロックを注入し、監視タイマーやポーリング間隔を
// 実時間を待たずに進められるようにする。
type Clock interface {
	// After はdの経過後に発火するチャネルを返す。
	After(d time.Duration) <-chan time.Time
	// NewTicker はd間隔で発火するTickerを返す。
	NewTicker(d time.Duration) Ticker
}

// Ticker は周期タイマーの抽象。
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// realClock は実時間に基づくClock実装。
type realClock struct{}

// NewRealClock は実時間のClockを返す。
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *realTicker) Stop() {
	t.ticker.Stop()
}
