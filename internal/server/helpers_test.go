package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shengyanli1982/ratelimit-go/internal/metrics"
	"github.com/shengyanli1982/ratelimit-go/internal/ratelimit"
	"github.com/shengyanli1982/toolkit/pkg/httptool"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestDependencies 使用本地限流器和独立注册器创建运行时组件
func newTestDependencies(t *testing.T) Dependencies {
	t.Helper()

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewPrometheusCollectorWithRegistry(&metrics.Config{
		Type:      metrics.PrometheusType,
		Enabled:   true,
		Namespace: "ratelimit",
	}, registry)
	require.NoError(t, err)

	logger := logr.Discard()
	local := ratelimit.NewLimiter(ratelimit.NewStore(ratelimit.WithStoreMetrics(collector)), ratelimit.WithMetrics(collector))

	return Dependencies{
		Checker:  local,
		Local:    local,
		Metrics:  collector,
		Registry: registry,
		Logger:   &logger,
	}
}

// newTestEngine 将服务注册到独立的 gin 引擎
func newTestEngine(svc interface{ RegisterGroup(*gin.RouterGroup) }) *gin.Engine {
	r := gin.New()
	svc.RegisterGroup(r.Group("/"))
	return r
}

func doRequest(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) httptool.BaseHttpResponse {
	t.Helper()

	var resp httptool.BaseHttpResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
