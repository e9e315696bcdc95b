package lock

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AccountLocker 账户级互斥
//
// 账本在数据库事务外层持有该锁，同一时刻最多持有一把账户锁。
// 返回的 unlock 必须调用。
type AccountLocker interface {
	Lock(ctx context.Context, accountID int64) (unlock func(), err error)
}

// ============================================================================
// 进程内实现
// ============================================================================

const defaultShards = 64

// MemoryLocker 进程内分段互斥锁，账户 ID 哈希到固定数量的互斥锁上
type MemoryLocker struct {
	shards []sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{shards: make([]sync.Mutex, defaultShards)}
}

func (l *MemoryLocker) Lock(ctx context.Context, accountID int64) (func(), error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(accountID, 10)))
	mu := &l.shards[h.Sum32()%uint32(len(l.shards))]

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return mu.Unlock, nil
	case <-ctx.Done():
		// 等待中的 goroutine 拿到锁后立即释放
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return nil, ctx.Err()
	}
}

// ============================================================================
// Redis 实现
// ============================================================================

// RedisLocker 基于 DistributedLock 的账户锁，多实例部署时使用
type RedisLocker struct {
	client        RedisClient
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client RedisClient, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, accountID int64) (func(), error) {
	dl := NewDistributedLock(l.client, AccountLockKey(accountID), uuid.NewString(), l.ttl)
	if err := dl.Lock(ctx, l.retryInterval, l.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		// 使用独立 context，请求取消后仍要释放
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = dl.Unlock(unlockCtx)
	}, nil
}

// ============================================================================
// 空实现
// ============================================================================

// NopLocker 不加锁，只依赖数据库行锁
type NopLocker struct{}

func (NopLocker) Lock(ctx context.Context, accountID int64) (func(), error) {
	return func() {}, nil
}
