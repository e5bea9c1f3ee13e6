package ratelimit

import (
	"context"
	"time"
)

// Record はキーごとの固定ウィンドウの状態。
type Record struct {
	Count   int
	ResetAt time.Time
}

// live はレコードがnowの時点で有効かどうかを返す。
// ResetAtちょうどの時刻は期限切れとして扱う。
func (r Record) live(now time.Time) bool {
	return now.Before(r.ResetAt)
}

// Store はレート制限レコードの保存先。
// Hitは判定と加算を1つの不可分な操作として行わなければならない。
type Store interface {
	// Hit は固定ウィンドウの判定を行い、判定後のレコードと許可可否を返す。
	// 拒否時はカウントを加算しない。
	Hit(ctx context.Context, key string, policy Policy, now time.Time) (Record, bool, error)

	// Get は有効なレコードを返す。存在しないか期限切れの場合はfalseを返す。
	Get(ctx context.Context, key string, now time.Time) (Record, bool, error)

	// Sweep は期限切れのレコードを削除し、削除件数を返す。
	Sweep(ctx context.Context, now time.Time) (int, error)
}
