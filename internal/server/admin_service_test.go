package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shengyanli1982/ratelimit-go/internal/backend"
	"github.com/shengyanli1982/ratelimit-go/internal/breaker"
	"github.com/shengyanli1982/ratelimit-go/internal/ratelimit"
	"github.com/shengyanli1982/ratelimit-go/internal/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedBuckets 通过一次检查为每个 IP 创建桶
func seedBuckets(t *testing.T, local *ratelimit.Limiter, ips ...string) {
	t.Helper()

	cfg := ratelimit.Config{Name: "publicApi", Requests: 100, Window: time.Minute, KeyType: ratelimit.KeyTypeIP}
	for _, ip := range ips {
		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", ip)
		_, err = local.Check(context.Background(), req, cfg)
		require.NoError(t, err)
	}
}

func TestAdminService_Buckets(t *testing.T) {
	deps := newTestDependencies(t)
	seedBuckets(t, deps.Local, "10.0.0.1", "10.0.0.2", "10.0.0.3")
	r := newTestEngine(NewAdminService(deps))

	w := doRequest(r, http.MethodGet, "/ratelimit/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Data struct {
			Store   ratelimit.StoreStats `json:"store"`
			Backend string               `json:"backend"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Data.Store.TotalBuckets)
	assert.Equal(t, "none", stats.Data.Backend)

	w = doRequest(r, http.MethodGet, "/ratelimit/buckets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "publicApi:ip:10.0.0.2")

	w = doRequest(r, http.MethodGet, "/ratelimit/bucket?key=publicApi:ip:10.0.0.1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bucket struct {
		Data ratelimit.BucketSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bucket))
	assert.Equal(t, "publicApi:ip:10.0.0.1", bucket.Data.Key)
	assert.Equal(t, 100.0, bucket.Data.MaxTokens)
	assert.InDelta(t, 99, bucket.Data.Tokens, 0.5)

	w = doRequest(r, http.MethodDelete, "/ratelimit/bucket?key=publicApi:ip:10.0.0.1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, ok := deps.Local.Status("publicApi:ip:10.0.0.1")
	assert.False(t, ok)

	w = doRequest(r, http.MethodDelete, "/ratelimit/bucket?key=publicApi:ip:10.0.0.1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, int64(response.CodeNotFound), decodeEnvelope(t, w).Code)

	w = doRequest(r, http.MethodGet, "/ratelimit/bucket", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodDelete, "/ratelimit/buckets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleared":2`)
	assert.Zero(t, deps.Local.Store().Len())
}

func TestAdminService_Presets(t *testing.T) {
	r := newTestEngine(NewAdminService(newTestDependencies(t)))

	w := doRequest(r, http.MethodGet, "/presets?class=payment", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []presetView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "billingPortal", resp.Data[0].Name)
	assert.Equal(t, ratelimit.ClassPayment, resp.Data[0].Class)
	assert.Equal(t, "1h0m0s", resp.Data[0].Window)

	w = doRequest(r, http.MethodGet, "/presets", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, len(ratelimit.PresetNames()))
}

func TestAdminService_Metrics(t *testing.T) {
	deps := newTestDependencies(t)
	seedBuckets(t, deps.Local, "10.0.0.1")
	r := newTestEngine(NewAdminService(deps))

	w := doRequest(r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "ratelimit_decisions_total"))
	assert.True(t, strings.Contains(w.Body.String(), "ratelimit_buckets 1"))

	deps.Registry = nil
	w = doRequest(newTestEngine(NewAdminService(deps)), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminService_Health(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	be := backend.NewRedisBackendFromOptions(&redis.Options{Addr: mr.Addr()})
	defer be.Close()

	deps := newTestDependencies(t)
	deps.Backend = be
	deps.Breaker = breaker.NewCircuitBreaker(breaker.DefaultSettings("test"))
	r := newTestEngine(NewAdminService(deps))

	w := doRequest(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"status":"ok"`)
	assert.Contains(t, body, `"type":"redis"`)
	assert.Contains(t, body, `"breaker":"closed"`)

	mr.Close()
	w = doRequest(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.Contains(t, w.Body.String(), `"reachable":false`)
}

func TestAdminService_Lifecycle(t *testing.T) {
	svc := NewAdminService(Dependencies{})
	assert.False(t, svc.IsRunning())
	svc.Run()
	assert.True(t, svc.IsRunning())
	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())
}
