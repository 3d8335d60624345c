package client

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectionPool(t *testing.T) {
	pool := NewConnectionPool(&config.HTTPClientConfig{
		Agent:     "test-agent",
		KeepAlive: 30000,
		Connect:   &config.ConnectConfig{IdleTotal: 20, IdlePerHost: 5, MaxPerHost: 8},
		Timeout:   &config.TimeoutConfig{Request: 2000, Idle: 3000},
	})
	defer pool.Close()

	tr := pool.transport
	assert.Equal(t, 20, tr.MaxIdleConns)
	assert.Equal(t, 5, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 8, tr.MaxConnsPerHost)
	assert.Equal(t, 2*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, 3*time.Second, tr.IdleConnTimeout)
	assert.False(t, tr.DisableKeepAlives)
}

func TestNewConnectionPool_Defaults(t *testing.T) {
	pool := NewConnectionPool(nil)
	defer pool.Close()

	tr := pool.transport
	assert.Equal(t, constants.DefaultIdleTotal, tr.MaxIdleConns)
	assert.False(t, tr.DisableKeepAlives)

	noKeepAlive := NewConnectionPool(&config.HTTPClientConfig{})
	assert.True(t, noKeepAlive.transport.DisableKeepAlives)
}

func TestConnectionPool_ClientSetsUserAgent(t *testing.T) {
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	pool := NewConnectionPool(&config.HTTPClientConfig{Agent: "ratelimitd-test", KeepAlive: 1000})
	defer pool.Close()
	c := pool.Client(time.Second)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom")
	resp, err = c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"ratelimitd-test", "custom"}, agents)
}
