package ratelimit

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shengyanli1982/ratelimit-go/internal/constants"
)

// ClientIP 按 X-Forwarded-For、X-Real-IP、CF-Connecting-IP 的顺序获取客户端 IP
func ClientIP(req *http.Request) string {
	if xff := req.Header.Get(constants.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := req.Header.Get(constants.HeaderXRealIP); ip != "" {
		return ip
	}

	if ip := req.Header.Get(constants.HeaderCFConnectingIP); ip != "" {
		return ip
	}

	return constants.UnknownClientIP
}

// ResolveKey 根据规则的键类型派生限流键
func ResolveKey(req *http.Request, cfg Config, caller Caller) (string, error) {
	switch cfg.KeyType {
	case KeyTypeIP:
		return "ip:" + ClientIP(req), nil

	case KeyTypeUser:
		if caller.UserID == "" {
			return "", ErrUserRequired
		}
		return "user:" + caller.UserID, nil

	case KeyTypeOrg:
		if caller.OrganizationID == "" {
			return "", ErrOrganizationRequired
		}
		return "org:" + caller.OrganizationID, nil

	case KeyTypeCustom:
		if cfg.KeyGenerator == nil {
			return "", ErrKeyGeneratorRequired
		}
		return cfg.KeyGenerator(req, caller), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKeyType, cfg.KeyType)
	}
}

// StoreKey 返回规则作用域下的存储键
func StoreKey(cfg Config, key string) string {
	if cfg.Name == "" {
		return key
	}
	return cfg.Name + ":" + key
}
