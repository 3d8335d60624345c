package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/shengyanli1982/ratelimit-go/internal/metrics"
)

var testEpoch = time.Date(2024, time.June, 23, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingMetrics 记录降级原因和决策来源
type recordingMetrics struct {
	metrics.MetricsCollector

	mu        sync.Mutex
	fallbacks []string
	decisions []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{MetricsCollector: metrics.NewNoopCollector()}
}

func (m *recordingMetrics) RecordFallback(reason string) {
	m.mu.Lock()
	m.fallbacks = append(m.fallbacks, reason)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordDecision(limiter, backend string, allowed bool) {
	m.mu.Lock()
	m.decisions = append(m.decisions, limiter+"/"+backend)
	m.mu.Unlock()
}

func (m *recordingMetrics) Fallbacks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fallbacks...)
}

func (m *recordingMetrics) Decisions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.decisions...)
}

func requestFromIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("X-Forwarded-For", ip)
	return req
}
