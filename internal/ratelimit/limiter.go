// Package ratelimit は固定ウィンドウ方式のレート制限を提供する。
//
// スコープ（api, auth, sitemap 等）ごとに「ウィンドウあたりの許可リクエスト数」を設定し、
// キー（"scope:clientAddress:path"）単位でカウンタを管理する。
// ウィンドウ境界では最大で予算の2倍のリクエストが通過しうるが、固定ウィンドウの仕様として許容する。
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// DefaultSweepInterval は期限切れレコードを掃除する既定の間隔。
const DefaultSweepInterval = 5 * time.Minute

// Clock は現在時刻の取得を抽象化する。テストで差し替える。
type Clock interface {
	Now() time.Time
}

// ClockFunc は関数をClockとして扱うアダプタ。
type ClockFunc func() time.Time

// Now はClockを実装する。
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock はtime.Nowを返すClock。
var SystemClock Clock = ClockFunc(time.Now)

// Policy はスコープごとのレート制限予算。
type Policy struct {
	Points int           // ウィンドウあたりの許可リクエスト数
	Window time.Duration // ウィンドウ長
}

// Decision はConsumeの判定結果。
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // 拒否時のみ設定される
	// Tracked はキーがいずれかのスコープに属し、カウントされたかどうか。
	Tracked bool
}

// RetryAfterSeconds はRetryAfterを秒単位に切り上げて返す。
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Status はPeekが返す非破壊の状態。
type Status struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Option はLimiterの設定を変更する。
type Option func(*Limiter)

// WithClock は時刻ソースを差し替える。
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithLogger はロガーを差し替える。
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithSweepInterval はバックグラウンド掃除の間隔を設定する。
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepInterval = d }
}

// WithObserver は判定結果と掃除件数の通知先を設定する。
func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

// Observer はレート制限の判定と掃除を観測する。メトリクス収集で使用する。
type Observer interface {
	ObserveDecision(scope string, allowed bool)
	ObserveSweep(removed int)
}

// Limiter はスコープ別の予算で固定ウィンドウのレート制限を行う。
// 状態はStoreが保持し、Limiterは予算表と時刻の管理のみを行う。
type Limiter struct {
	store         Store
	clock         Clock
	logger        *slog.Logger
	observer      Observer
	sweepInterval time.Duration

	mu       sync.RWMutex
	policies map[string]Policy

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New はLimiterを生成する。スイーパーはStartSweeperを呼ぶまで起動しない。
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:         store,
		clock:         SystemClock,
		logger:        slog.Default(),
		sweepInterval: DefaultSweepInterval,
		policies:      make(map[string]Policy),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Configure はスコープの予算を設定する。同じスコープを再設定すると上書きする。
// pointsとwindowは正の値でなければならない。
func (l *Limiter) Configure(scope string, points int, window time.Duration) error {
	if scope == "" || strings.Contains(scope, ":") {
		return fmt.Errorf("ratelimit: invalid scope %q", scope)
	}
	if points <= 0 {
		return fmt.Errorf("ratelimit: points must be positive for scope %q, got %d", scope, points)
	}
	if window <= 0 {
		return fmt.Errorf("ratelimit: window must be positive for scope %q, got %s", scope, window)
	}

	l.mu.Lock()
	l.policies[scope] = Policy{Points: points, Window: window}
	l.mu.Unlock()
	return nil
}

// Policy はスコープの予算を返す。
func (l *Limiter) Policy(scope string) (Policy, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.policies[scope]
	return p, ok
}

// Key はスコープ・クライアントアドレス・パスからレート制限キーを組み立てる。
func Key(scope, clientAddress, path string) string {
	return scope + ":" + clientAddress + ":" + path
}

// ScopeOf はキーの先頭からスコープ名を取り出す。
func ScopeOf(key string) string {
	scope, _, _ := strings.Cut(key, ":")
	return scope
}

// Consume はキーに対して1リクエスト分の予算を消費する。
//
// レコードが存在しないか期限切れなら新しいウィンドウを開始して許可する。
// 有効なレコードでcountが予算未満なら加算して許可し、予算に達していれば拒否する。
// 未設定スコープのキーは制限せずに許可する。ストアの障害時も許可する（fail open）。
func (l *Limiter) Consume(ctx context.Context, key string) Decision {
	scope := ScopeOf(key)
	policy, ok := l.Policy(scope)
	if !ok {
		l.logger.Warn("rate limit scope not configured",
			slog.String("scope", scope),
		)
		return Decision{Allowed: true}
	}

	now := l.clock.Now()
	rec, allowed, err := l.store.Hit(ctx, key, policy, now)
	if err != nil {
		l.logger.Error("rate limit store failed, allowing request",
			slog.String("scope", scope),
			slog.String("error", err.Error()),
		)
		return Decision{Allowed: true, Limit: policy.Points, Remaining: policy.Points}
	}

	d := Decision{
		Allowed:   allowed,
		Limit:     policy.Points,
		Remaining: max(policy.Points-rec.Count, 0),
		ResetAt:   rec.ResetAt,
		Tracked:   true,
	}
	if !allowed {
		d.RetryAfter = rec.ResetAt.Sub(now)
		l.logger.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.Int("count", rec.Count),
			slog.Int("retry_after", d.RetryAfterSeconds()),
		)
	}
	if l.observer != nil {
		l.observer.ObserveDecision(scope, allowed)
	}
	return d
}

// Peek はキーの現在の状態を変更せずに返す。
// 有効なレコードがない場合はfalseを返す。
func (l *Limiter) Peek(ctx context.Context, key string) (Status, bool) {
	policy, ok := l.Policy(ScopeOf(key))
	if !ok {
		return Status{}, false
	}

	rec, found, err := l.store.Get(ctx, key, l.clock.Now())
	if err != nil {
		l.logger.Warn("rate limit peek failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Status{}, false
	}
	if !found {
		return Status{}, false
	}

	return Status{
		Limit:     policy.Points,
		Remaining: max(policy.Points-rec.Count, 0),
		ResetAt:   rec.ResetAt,
	}, true
}

// Sweep は期限切れのレコードを削除し、削除件数を返す。
func (l *Limiter) Sweep(ctx context.Context) int {
	removed, err := l.store.Sweep(ctx, l.clock.Now())
	if err != nil {
		l.logger.Error("rate limit sweep failed", slog.String("error", err.Error()))
		return removed
	}
	if removed > 0 {
		l.logger.Debug("rate limit records swept", slog.Int("removed", removed))
	}
	if l.observer != nil {
		l.observer.ObserveSweep(removed)
	}
	return removed
}

// StartSweeper はバックグラウンドで定期的にSweepを実行する。
// ctxのキャンセルまたはStopで停止する。
func (l *Limiter) StartSweeper(ctx context.Context) {
	go l.sweepLoop(ctx)
}

// Stop はバックグラウンドのスイーパーを停止する。複数回呼んでもよい。
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// sweepLoop は停止されるまで一定間隔でSweepを呼ぶ。
func (l *Limiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep(ctx)
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		}
	}
}
