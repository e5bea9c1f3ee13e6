package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// defaultShardCount はMemoryStoreの既定シャード数。
const defaultShardCount = 16

// MemoryStore はプロセス内のシャード化マップでレコードを保持するStore。
// 各シャードは独立したミューテックスを持ち、掃除は1シャードずつロックする。
type MemoryStore struct {
	shards []*memoryShard
}

type memoryShard struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore はシャード数shardCountのMemoryStoreを生成する。
// shardCountが0以下の場合は既定値を使う。
func NewMemoryStore(shardCount int) *MemoryStore {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	s := &MemoryStore{shards: make([]*memoryShard, shardCount)}
	for i := range s.shards {
		s.shards[i] = &memoryShard{records: make(map[string]*Record)}
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Hit はStoreを実装する。
func (s *MemoryStore) Hit(_ context.Context, key string, policy Policy, now time.Time) (Record, bool, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok || !rec.live(now) {
		// 期限切れのレコードは合算せずに置き換える
		rec = &Record{Count: 1, ResetAt: now.Add(policy.Window)}
		sh.records[key] = rec
		return *rec, true, nil
	}

	if rec.Count >= policy.Points {
		return *rec, false, nil
	}

	rec.Count++
	return *rec, true, nil
}

// Get はStoreを実装する。
func (s *MemoryStore) Get(_ context.Context, key string, now time.Time) (Record, bool, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok || !rec.live(now) {
		return Record{}, false, nil
	}
	return *rec, true, nil
}

// Sweep はStoreを実装する。
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh.mu.Lock()
		for key, rec := range sh.records {
			if !rec.live(now) {
				delete(sh.records, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len は保持しているレコード数を返す。期限切れで未掃除のものも含む。
// テストおよびメトリクス用。
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}

// Contains はキーのレコードが（期限切れを含めて）存在するかを返す。テスト用。
func (s *MemoryStore) Contains(key string) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.records[key]
	return ok
}

var _ Store = (*MemoryStore)(nil)
