package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shengyanli1982/ratelimit-go/internal/auth"
	"github.com/shengyanli1982/ratelimit-go/internal/client"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

// maxResponseBytes 单次响应体读取上限
const maxResponseBytes = 1 << 20

// upstashReply REST 接口单条命令的返回
type upstashReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// UpstashBackend 基于 Upstash REST 接口的远程存储，无需长连接
type UpstashBackend struct {
	baseURL string
	auth    auth.Authenticator
	pool    *client.ConnectionPool
	http    *http.Client
	closed  atomic.Bool
}

// NewUpstashBackend 创建 REST 远程存储，pool 为 nil 时使用默认连接池
func NewUpstashBackend(baseURL, token string, pool *client.ConnectionPool) (*UpstashBackend, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid upstash url: %w", err)
	}
	if (u.Scheme != constants.ProtocolHTTP && u.Scheme != constants.ProtocolHTTPS) || u.Host == "" {
		return nil, fmt.Errorf("invalid upstash url: %q", baseURL)
	}

	authenticator, err := auth.NewBearerAuthenticator(token)
	if err != nil {
		return nil, fmt.Errorf("invalid upstash token: %w", err)
	}

	if pool == nil {
		pool = client.NewConnectionPool(nil)
	}

	return &UpstashBackend{
		baseURL: strings.TrimRight(u.String(), "/"),
		auth:    authenticator,
		pool:    pool,
		http:    pool.Client(0),
	}, nil
}

// Record 通过 /multi-exec 事务执行一次滑动窗口记录
func (b *UpstashBackend) Record(ctx context.Context, key string, now time.Time, window time.Duration, member string) (Window, error) {
	commands := [][]string{
		{"ZREMRANGEBYSCORE", key, "-inf", windowStartBound(now, window)},
		{"ZCARD", key},
		{"ZRANGE", key, "0", "0", "WITHSCORES"},
		{"ZADD", key, strconv.FormatInt(now.UnixMilli(), 10), member},
		{"EXPIRE", key, strconv.FormatInt(expireSeconds(window), 10)},
	}

	var replies []upstashReply
	if err := b.post(ctx, "/multi-exec", commands, &replies); err != nil {
		return Window{}, err
	}
	if len(replies) != len(commands) {
		return Window{}, fmt.Errorf("%w: expected %d replies, got %d", ErrMalformedResponse, len(commands), len(replies))
	}
	for i, r := range replies {
		if r.Error != "" {
			return Window{}, fmt.Errorf("upstash command %s failed: %s", commands[i][0], r.Error)
		}
	}

	var w Window
	if err := json.Unmarshal(replies[1].Result, &w.Count); err != nil {
		return Window{}, fmt.Errorf("%w: zcard: %v", ErrMalformedResponse, err)
	}

	var members []string
	if err := json.Unmarshal(replies[2].Result, &members); err != nil {
		return Window{}, fmt.Errorf("%w: zrange: %v", ErrMalformedResponse, err)
	}
	if len(members) >= 2 {
		score, err := strconv.ParseFloat(members[1], 64)
		if err != nil {
			return Window{}, fmt.Errorf("%w: zrange score: %v", ErrMalformedResponse, err)
		}
		w.Oldest = time.UnixMilli(int64(score))
	}

	return w, nil
}

// Delete 删除一个键的窗口
func (b *UpstashBackend) Delete(ctx context.Context, key string) (bool, error) {
	var replies []upstashReply
	if err := b.post(ctx, "/multi-exec", [][]string{{"DEL", key}}, &replies); err != nil {
		return false, err
	}
	if len(replies) != 1 {
		return false, fmt.Errorf("%w: expected 1 reply, got %d", ErrMalformedResponse, len(replies))
	}
	if replies[0].Error != "" {
		return false, fmt.Errorf("upstash command DEL failed: %s", replies[0].Error)
	}

	var n int64
	if err := json.Unmarshal(replies[0].Result, &n); err != nil {
		return false, fmt.Errorf("%w: del: %v", ErrMalformedResponse, err)
	}
	return n > 0, nil
}

// Ping 发送 PING 命令
func (b *UpstashBackend) Ping(ctx context.Context) error {
	var reply upstashReply
	if err := b.post(ctx, "", []string{"PING"}, &reply); err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("upstash ping failed: %s", reply.Error)
	}
	return nil
}

// post 发送 JSON 命令并解码响应
func (b *UpstashBackend) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	if b.closed.Load() {
		return ErrClosed
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set(constants.HeaderContentType, "application/json")
	if err := b.auth.Apply(req); err != nil {
		return err
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstash request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("upstash response read failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var reply upstashReply
		if json.Unmarshal(data, &reply) == nil && reply.Error != "" {
			return fmt.Errorf("upstash status %d: %s", resp.StatusCode, reply.Error)
		}
		return fmt.Errorf("upstash status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// Type 获取远程存储类型
func (b *UpstashBackend) Type() string {
	return TypeUpstash
}

// Close 释放空闲连接
func (b *UpstashBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pool.Close()
}
