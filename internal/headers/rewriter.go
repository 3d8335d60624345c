package headers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shengyanli1982/ratelimit-go/internal/config"
	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

// 头部操作相关错误定义
var (
	ErrInvalidOperation = errors.New("invalid header operation")
	ErrEmptyHeaderKey   = errors.New("header key cannot be empty")
	ErrEmptyHeaderValue = errors.New("header value cannot be empty")
	ErrNilHeader        = errors.New("header cannot be nil")
)

type opKind int

const (
	opInsert opKind = iota
	opReplace
	opRemove
)

// operation 预先校验过的单个头部操作
type operation struct {
	kind  opKind
	key   string // 规范化后的键名
	value string
}

// Rewriter 按配置顺序改写转发请求的头部
//
// 操作在创建时校验一次，Apply 在请求路径上不会因配置返回错误。
type Rewriter struct {
	ops []operation
}

// NewRewriter 根据头部操作配置创建改写器
func NewRewriter(ops []config.HeaderOpConfig) (*Rewriter, error) {
	r := &Rewriter{ops: make([]operation, 0, len(ops))}

	for i, op := range ops {
		compiled, err := compile(op)
		if err != nil {
			return nil, fmt.Errorf("header operation %d: %w", i, err)
		}
		r.ops = append(r.ops, compiled)
	}

	return r, nil
}

func compile(op config.HeaderOpConfig) (operation, error) {
	key := strings.TrimSpace(op.Key)
	if key == "" {
		return operation{}, ErrEmptyHeaderKey
	}
	key = http.CanonicalHeaderKey(key)

	switch strings.ToLower(op.Op) {
	case constants.HeaderOpInsert:
		if op.Value == "" {
			return operation{}, fmt.Errorf("%w: %s", ErrEmptyHeaderValue, key)
		}
		return operation{kind: opInsert, key: key, value: op.Value}, nil
	case constants.HeaderOpReplace:
		if op.Value == "" {
			return operation{}, fmt.Errorf("%w: %s", ErrEmptyHeaderValue, key)
		}
		return operation{kind: opReplace, key: key, value: op.Value}, nil
	case constants.HeaderOpRemove:
		return operation{kind: opRemove, key: key}, nil
	default:
		return operation{}, fmt.Errorf("%w: %s", ErrInvalidOperation, op.Op)
	}
}

// Apply 将所有操作应用到头部
func (r *Rewriter) Apply(h http.Header) error {
	if h == nil {
		return ErrNilHeader
	}

	for _, op := range r.ops {
		switch op.kind {
		case opInsert:
			// 已存在时保留调用方的值
			if h.Get(op.key) == "" {
				h.Set(op.key, op.value)
			}
		case opReplace:
			h.Set(op.key, op.value)
		case opRemove:
			h.Del(op.key)
		}
	}

	return nil
}

// ApplyToRequest 改写请求头部
func (r *Rewriter) ApplyToRequest(req *http.Request) error {
	if req == nil {
		return ErrNilHeader
	}
	return r.Apply(req.Header)
}

// Len 返回操作数量
func (r *Rewriter) Len() int {
	return len(r.ops)
}
