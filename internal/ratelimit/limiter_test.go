package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BasicSequence(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(nil, WithClock(clock.Now))
	cfg := Config{Requests: 2, Window: time.Minute, KeyType: KeyTypeIP}
	req := requestFromIP("1.2.3.4")
	ctx := context.Background()

	res, err := l.Check(ctx, req, cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 1, res.Remaining)
	assert.Zero(t, res.RetryAfter)
	assert.Equal(t, testEpoch.Add(30*time.Second), res.Reset)

	res, err = l.Check(ctx, req, cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, testEpoch.Add(time.Minute), res.Reset)

	res, err = l.Check(ctx, req, cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30*time.Second, res.RetryAfter)
	assert.Equal(t, int64(30), res.RetryAfterSeconds())
}

func TestLimiter_Refill(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(nil, WithClock(clock.Now))
	cfg := Config{Requests: 2, Window: time.Minute, KeyType: KeyTypeIP}
	req := requestFromIP("1.2.3.4")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Check(ctx, req, cfg)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	clock.Advance(29 * time.Second)
	res, err := l.Check(ctx, req, cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	clock.Advance(time.Second)
	res, err = l.Check(ctx, req, cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	// 长时间闲置后最多恢复到上限
	clock.Advance(10 * time.Minute)
	res, err = l.Check(ctx, req, cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	snap, ok := l.Status("ip:1.2.3.4")
	require.True(t, ok)
	assert.InDelta(t, 1.0, snap.Tokens, 1e-6)
	assert.Equal(t, 2.0, snap.MaxTokens)
	assert.InDelta(t, 2.0/60.0, snap.RefillRate, 1e-9)
}

func TestLimiter_TokenConservation(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(nil, WithClock(clock.Now))
	cfg := Config{Requests: 10, Window: time.Minute, KeyType: KeyTypeIP}
	req := requestFromIP("1.2.3.4")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(context.Background(), req, cfg)
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestLimiter_KeyIsolation(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(nil, WithClock(clock.Now))
	cfg := Config{Requests: 1, Window: time.Minute, KeyType: KeyTypeIP}
	ctx := context.Background()

	res, err := l.Check(ctx, requestFromIP("1.1.1.1"), cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Check(ctx, requestFromIP("1.1.1.1"), cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = l.Check(ctx, requestFromIP("2.2.2.2"), cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// 同一键在不同规则下互不影响
	named := cfg
	named.Name = "other"
	res, err = l.Check(ctx, requestFromIP("1.1.1.1"), named)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiter_ConfigurationErrors(t *testing.T) {
	l := NewLimiter(nil)
	req := requestFromIP("1.2.3.4")
	ctx := context.Background()

	_, err := l.Check(ctx, req, Config{Requests: 5, Window: time.Minute, KeyType: KeyTypeUser})
	assert.ErrorIs(t, err, ErrUserRequired)

	_, err = l.Check(ctx, req, Config{Requests: 0, Window: time.Minute, KeyType: KeyTypeIP})
	assert.ErrorIs(t, err, ErrInvalidRequests)

	_, err = l.Check(ctx, req, Config{Requests: 1, KeyType: KeyTypeIP})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	assert.Zero(t, l.Store().Len())
}

func TestLimiter_ResetAndClear(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(nil, WithClock(clock.Now))
	cfg := Config{Requests: 1, Window: time.Hour, KeyType: KeyTypeIP}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, requestFromIP(fmt.Sprintf("10.0.0.%d", i)), cfg)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, l.Stats().TotalBuckets)

	assert.True(t, l.Reset("ip:10.0.0.0"))
	assert.False(t, l.Reset("ip:10.0.0.0"))

	res, err := l.Check(ctx, requestFromIP("10.0.0.0"), cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	l.Clear()
	assert.Zero(t, l.Stats().TotalBuckets)
	_, ok := l.Status("ip:10.0.0.1")
	assert.False(t, ok)
}

func TestLimiter_RecordsDecisions(t *testing.T) {
	m := newRecordingMetrics()
	l := NewLimiter(nil, WithMetrics(m))

	_, err := l.Check(context.Background(), requestFromIP("1.2.3.4"), Config{Requests: 1, Window: time.Minute, KeyType: KeyTypeIP})
	require.NoError(t, err)

	assert.Equal(t, []string{"local/memory"}, m.Decisions())
}
