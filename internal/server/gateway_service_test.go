package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/headers"
	"github.com/shengyanli1982/ratelimit-go/internal/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayService_PublicRoute(t *testing.T) {
	deps := newTestDependencies(t)
	svc, err := NewGatewayService([]config.RouteConfig{
		{Name: "contact", Method: "POST", Path: "/contact", Presets: []string{"contactForm"}},
	}, deps)
	require.NoError(t, err)
	r := newTestEngine(svc)

	headers := map[string]string{"X-Forwarded-For": "203.0.113.7"}
	for i := 0; i < 5; i++ {
		w := doRequest(r, http.MethodPost, "/contact", headers)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	w := doRequest(r, http.MethodPost, "/contact", headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "12", w.Header().Get("Retry-After"))

	var body response.RejectionBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Code)

	// GET 不匹配该路由
	w = doRequest(r, http.MethodGet, "/contact", headers)
	assert.Equal(t, http.StatusNotFound, w.Code)

	count, err := testutil.GatherAndCount(deps.Registry, "ratelimit_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGatewayService_CallerHeaders(t *testing.T) {
	deps := newTestDependencies(t)
	svc, err := NewGatewayService([]config.RouteConfig{
		{Name: "chat", Method: "ANY", Path: "/ai/chat", Presets: []string{"aiChat", "aiChatOrg"}},
	}, deps)
	require.NoError(t, err)
	r := newTestEngine(svc)

	w := doRequest(r, http.MethodPost, "/ai/chat", map[string]string{"X-User-ID": "u1", "X-Organization-ID": "o1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "29", w.Header().Get("X-RateLimit-Remaining"))

	resp := decodeEnvelope(t, w)
	assert.Equal(t, int64(response.CodeSuccess), resp.Code)

	// 缺少组织身份属于配置错误
	w = doRequest(r, http.MethodGet, "/ai/chat", map[string]string{"X-User-ID": "u1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, int64(response.CodeConfiguration), decodeEnvelope(t, w).Code)

	_, ok := deps.Local.Status("aiChat:user:u1")
	assert.True(t, ok)
	_, ok = deps.Local.Status("aiChatOrg:org:o1")
	assert.True(t, ok)
}

func TestGatewayService_Upstream(t *testing.T) {
	var gotAuth, gotPath, gotGateway, gotUser string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotGateway = r.Header.Get("X-Gateway")
		gotUser = r.Header.Get("X-User-ID")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("upstream"))
	}))
	defer upstream.Close()

	deps := newTestDependencies(t)
	svc, err := NewGatewayService([]config.RouteConfig{
		{
			Name:    "api",
			Method:  "GET",
			Path:    "/v1/*path",
			Presets: []string{"publicApi"},
			Upstream: &config.UpstreamConfig{
				URL:  upstream.URL,
				Auth: &config.AuthConfig{Type: "bearer", Token: "upstream-token"},
				Headers: []config.HeaderOpConfig{
					{Op: "insert", Key: "X-Gateway", Value: "ratelimitd"},
					{Op: "remove", Key: "X-User-ID"},
				},
			},
		},
	}, deps)
	require.NoError(t, err)
	svc.Run()
	defer svc.Stop()

	r := newTestEngine(svc)
	w := doRequest(r, http.MethodGet, "/v1/models", map[string]string{"X-Real-IP": "198.51.100.2", "X-User-ID": "user-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "upstream", w.Body.String())
	assert.Equal(t, "ratelimitd", gotGateway)
	assert.Empty(t, gotUser)
	assert.Equal(t, "99", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "Bearer upstream-token", gotAuth)
	assert.Equal(t, "/v1/models", gotPath)
}

func TestGatewayService_UpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	deps := newTestDependencies(t)
	svc, err := NewGatewayService([]config.RouteConfig{
		{Name: "api", Method: "GET", Path: "/down", Presets: []string{"publicApi"}, Upstream: &config.UpstreamConfig{URL: url}},
	}, deps)
	require.NoError(t, err)

	w := doRequest(newTestEngine(svc), http.MethodGet, "/down", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, int64(response.CodeBadGateway), decodeEnvelope(t, w).Code)
}

func TestNewGatewayService_Errors(t *testing.T) {
	deps := newTestDependencies(t)

	_, err := NewGatewayService([]config.RouteConfig{
		{Name: "bad", Path: "/bad", Presets: []string{"doesNotExist"}},
	}, deps)
	assert.ErrorIs(t, err, ErrUnknownPreset)

	_, err = NewGatewayService([]config.RouteConfig{
		{Name: "bad", Path: "/bad", Presets: []string{"publicApi"}, Upstream: &config.UpstreamConfig{
			URL:  "http://localhost:9999",
			Auth: &config.AuthConfig{Type: "basic"},
		}},
	}, deps)
	assert.Error(t, err)

	_, err = NewGatewayService([]config.RouteConfig{
		{Name: "bad", Path: "/bad", Presets: []string{"publicApi"}, Upstream: &config.UpstreamConfig{
			URL:     "http://localhost:9999",
			Headers: []config.HeaderOpConfig{{Op: "insert", Key: "X-A"}},
		}},
	}, deps)
	assert.ErrorIs(t, err, headers.ErrEmptyHeaderValue)

	deps.Checker = nil
	_, err = NewGatewayService(nil, deps)
	assert.ErrorIs(t, err, ErrNilChecker)
}

func TestGatewayService_Lifecycle(t *testing.T) {
	svc, err := NewGatewayService([]config.RouteConfig{
		{Name: "a", Path: "/a", Presets: []string{"publicApi"}},
	}, newTestDependencies(t))
	require.NoError(t, err)

	assert.False(t, svc.IsRunning())
	svc.Run()
	svc.Run()
	assert.True(t, svc.IsRunning())
	svc.Stop()
	assert.False(t, svc.IsRunning())

	routes := svc.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "a", routes[0].Name)
}
