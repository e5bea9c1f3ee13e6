package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix はRedis上のレート制限キーの接頭辞。
const redisKeyPrefix = "gooddrive:ratelimit:"

// fixedWindowScript は判定と加算をRedis側で不可分に行う。
// 戻り値は {count, pttl(ms), allowed(0|1)}。
var fixedWindowScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local window = tonumber(ARGV[2])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, window, 1}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, window, 1}
end
current = tonumber(current)
if current >= tonumber(ARGV[1]) then
  return {current, ttl, 0}
end
current = redis.call('INCR', KEYS[1])
return {current, ttl, 1}
`)

// RedisStore はRedisにレコードを保持するStore。複数プロセスで予算を共有する場合に使う。
// 期限はRedisのキーTTLで管理するため、ウィンドウの計算はRedisサーバーの時刻に従う。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore は既存のクライアントからRedisStoreを生成する。
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedisStore はURLからクライアントを生成し、疎通確認を行う。
func OpenRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close はクライアントを閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Hit はStoreを実装する。
func (s *RedisStore) Hit(ctx context.Context, key string, policy Policy, now time.Time) (Record, bool, error) {
	res, err := fixedWindowScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + key},
		policy.Points, policy.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to run fixed window script: %w", err)
	}
	if len(res) != 3 {
		return Record{}, false, fmt.Errorf("unexpected fixed window script result: %v", res)
	}

	rec := Record{
		Count:   int(res[0]),
		ResetAt: now.Add(time.Duration(res[1]) * time.Millisecond),
	}
	return rec, res[2] == 1, nil
}

// Get はStoreを実装する。
func (s *RedisStore) Get(ctx context.Context, key string, now time.Time) (Record, bool, error) {
	redisKey := redisKeyPrefix + key

	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, false, fmt.Errorf("failed to read rate limit record: %w", err)
	}

	if errors.Is(get.Err(), redis.Nil) || ttl.Val() <= 0 {
		return Record{}, false, nil
	}
	count, err := get.Int()
	if err != nil {
		return Record{}, false, fmt.Errorf("invalid rate limit counter: %w", err)
	}

	return Record{Count: count, ResetAt: now.Add(ttl.Val())}, true, nil
}

// Sweep はStoreを実装する。期限切れのキーはRedisが削除するため何もしない。
func (s *RedisStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
