package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "upstash-token"

// newFakeUpstash 启动一个把 REST 命令转发到 miniredis 的测试服务
func newFakeUpstash(t *testing.T) (*httptest.Server, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}

		switch r.URL.Path {
		case "/multi-exec":
			var commands [][]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&commands))

			replies := make([]map[string]interface{}, 0, len(commands))
			for _, command := range commands {
				args := make([]interface{}, len(command))
				for i, c := range command {
					args[i] = c
				}
				res, err := rdb.Do(r.Context(), args...).Result()
				if err != nil && err != redis.Nil {
					replies = append(replies, map[string]interface{}{"error": err.Error()})
					continue
				}
				replies = append(replies, map[string]interface{}{"result": res})
			}
			_ = json.NewEncoder(w).Encode(replies)

		case "/":
			_, _ = w.Write([]byte(`{"result":"PONG"}`))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, mr
}

func TestUpstashBackend_Record(t *testing.T) {
	srv, mr := newFakeUpstash(t)

	b, err := NewUpstashBackend(srv.URL+"/", testToken, nil)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	now := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)

	w, err := b.Record(ctx, "ratelimit:user:u1", now, time.Minute, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Count)
	assert.True(t, w.Oldest.IsZero())

	w, err = b.Record(ctx, "ratelimit:user:u1", now.Add(time.Second), time.Minute, "m2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Count)
	assert.Equal(t, now.UnixMilli(), w.Oldest.UnixMilli())

	score, err := mr.ZScore("ratelimit:user:u1", "m2")
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(now.Add(time.Second).UnixMilli(), 10), strconv.FormatFloat(score, 'f', 0, 64))
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:user:u1"))

	assert.NoError(t, b.Ping(ctx))
	assert.Equal(t, TypeUpstash, b.Type())
}

func TestUpstashBackend_Unauthorized(t *testing.T) {
	srv, _ := newFakeUpstash(t)

	b, err := NewUpstashBackend(srv.URL, "wrong-token", nil)
	require.NoError(t, err)

	_, err = b.Record(context.Background(), "k", time.Now(), time.Minute, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestUpstashBackend_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not an array", body: `{"result":"OK"}`},
		{name: "short array", body: `[{"result":0},{"result":1}]`},
		{name: "bad count", body: `[{"result":0},{"result":"x"},{"result":[]},{"result":1},{"result":1}]`},
		{name: "bad score", body: `[{"result":0},{"result":1},{"result":["m","abc"]},{"result":1},{"result":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			b, err := NewUpstashBackend(srv.URL, testToken, nil)
			require.NoError(t, err)

			_, err = b.Record(context.Background(), "k", time.Now(), time.Minute, "m")
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestUpstashBackend_CommandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"result":0},{"error":"WRONGTYPE"},{"result":[]},{"result":1},{"result":1}]`))
	}))
	defer srv.Close()

	b, err := NewUpstashBackend(srv.URL, testToken, nil)
	require.NoError(t, err)

	_, err = b.Record(context.Background(), "k", time.Now(), time.Minute, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZCARD")
}

func TestUpstashBackend_ContextTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	// 先放行处理器，srv.Close 才不会等待活动连接
	defer close(release)

	b, err := NewUpstashBackend(srv.URL, testToken, nil)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = b.Record(ctx, "k", time.Now(), time.Minute, "m")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewUpstashBackend_Invalid(t *testing.T) {
	_, err := NewUpstashBackend("not a url", testToken, nil)
	assert.Error(t, err)

	_, err = NewUpstashBackend("ftp://example.com", testToken, nil)
	assert.Error(t, err)

	_, err = NewUpstashBackend("https://example.upstash.io", " ", nil)
	assert.Error(t, err)

	b, err := NewUpstashBackend("https://example.upstash.io", testToken, nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	_, err = b.Record(context.Background(), "k", time.Now(), time.Minute, "m")
	assert.ErrorIs(t, err, ErrClosed)
}
