package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
	"github.com/shengyanli1982/ratelimit-go/internal/metrics"
)

const (
	// idleTTL 超过该时长未补充的桶在淘汰时优先清除
	idleTTL = time.Hour

	// approxBucketBytes 单个桶的估算内存占用
	approxBucketBytes = 64

	evictReasonIdle   = "idle"
	evictReasonOldest = "oldest"
)

// StoreOption 桶存储配置选项
type StoreOption func(*Store)

// WithMaxBuckets 设置桶数量软上限
func WithMaxBuckets(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxBuckets = n
		}
	}
}

// WithShards 设置分片数
func WithShards(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithStoreMetrics 设置指标收集器
func WithStoreMetrics(m metrics.MetricsCollector) StoreOption {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// StoreStats 桶存储统计信息
type StoreStats struct {
	TotalBuckets int    `json:"totalBuckets"`
	MaxBuckets   int    `json:"maxBuckets"`
	Shards       int    `json:"shards"`
	MemoryUsage  string `json:"memoryUsage"`
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Store 进程内令牌桶存储，按键哈希分片加锁
//
// 桶数量达到上限时先清除闲置超过一小时的桶，仍未降到上限以下时再清除最旧的 10%。
// 该上限是近似值：并发插入可能短暂越过上限。
type Store struct {
	shards     []*shard
	shardCount int
	maxBuckets int
	size       atomic.Int64
	evictMu    sync.Mutex
	metrics    metrics.MetricsCollector
}

// NewStore 创建新的桶存储实例
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		shardCount: constants.DefaultStoreShards,
		maxBuckets: constants.DefaultMaxBuckets,
		metrics:    metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}

	return s
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// getOrCreate 获取或创建指定键的桶
func (s *Store) getOrCreate(key string, cfg Config, now time.Time) *bucket {
	sh := s.shardFor(key)

	sh.mu.Lock()
	b, ok := sh.buckets[key]
	sh.mu.Unlock()
	if ok {
		return b
	}

	if s.Len() >= s.maxBuckets {
		s.evict(now)
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	// 双重检查
	if b, ok := sh.buckets[key]; ok {
		return b
	}

	b = newBucket(cfg, now)
	sh.buckets[key] = b
	s.metrics.RecordBuckets(int(s.size.Add(1)))

	return b
}

// evict 执行一次淘汰，同一时刻只有一个淘汰过程
func (s *Store) evict(now time.Time) {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	if s.Len() < s.maxBuckets {
		return
	}

	cutoff := now.Add(-idleTTL).UnixNano()
	idle := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, b := range sh.buckets {
			if b.lastRefill.Load() < cutoff {
				delete(sh.buckets, key)
				idle++
			}
		}
		sh.mu.Unlock()
	}
	s.size.Add(int64(-idle))
	s.metrics.RecordBucketEviction(evictReasonIdle, idle)

	if s.Len() >= s.maxBuckets {
		s.evictOldest(s.maxBuckets / 10)
	}

	s.metrics.RecordBuckets(s.Len())
}

// evictOldest 按最近补充时间清除最旧的 n 个桶
func (s *Store) evictOldest(n int) {
	if n < 1 {
		n = 1
	}

	type entry struct {
		key        string
		lastRefill int64
	}

	entries := make([]entry, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, b := range sh.buckets {
			entries = append(entries, entry{key: key, lastRefill: b.lastRefill.Load()})
		}
		sh.mu.Unlock()
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastRefill < entries[j].lastRefill
	})

	if n > len(entries) {
		n = len(entries)
	}

	removed := 0
	for _, e := range entries[:n] {
		if s.Delete(e.key) {
			removed++
		}
	}
	s.metrics.RecordBucketEviction(evictReasonOldest, removed)
}

// Get 返回指定键在 now 时刻的桶状态
func (s *Store) Get(key string, now time.Time) (BucketSnapshot, bool) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	b, ok := sh.buckets[key]
	sh.mu.Unlock()

	if !ok {
		return BucketSnapshot{}, false
	}
	return b.snapshot(key, now), true
}

// Delete 删除指定键的桶
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)

	sh.mu.Lock()
	_, ok := sh.buckets[key]
	if ok {
		delete(sh.buckets, key)
	}
	sh.mu.Unlock()

	if ok {
		s.size.Add(-1)
	}
	return ok
}

// Clear 删除所有桶
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		n := len(sh.buckets)
		sh.buckets = make(map[string]*bucket)
		sh.mu.Unlock()
		s.size.Add(int64(-n))
	}
	s.metrics.RecordBuckets(s.Len())
}

// Keys 返回当前所有桶的键
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key := range sh.buckets {
			keys = append(keys, key)
		}
		sh.mu.Unlock()
	}
	sort.Strings(keys)
	return keys
}

// Len 返回当前桶数量
func (s *Store) Len() int {
	return int(s.size.Load())
}

// Stats 返回存储统计信息
func (s *Store) Stats() StoreStats {
	n := s.Len()
	return StoreStats{
		TotalBuckets: n,
		MaxBuckets:   s.maxBuckets,
		Shards:       len(s.shards),
		MemoryUsage:  fmt.Sprintf("%.2f KB", float64(n*approxBucketBytes)/1024),
	}
}
