package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func TestResolve(t *testing.T) {
	logger := klog.NewKlogr()

	tests := []struct {
		name     string
		env      map[string]string
		wantType   string
		wantErr    bool
		initFailed bool
	}{
		{
			name: "upstash preferred",
			env: map[string]string{
				"UPSTASH_REDIS_REST_URL":   "https://example.upstash.io",
				"UPSTASH_REDIS_REST_TOKEN": "token",
				"REDIS_URL":                "redis://localhost:6379",
			},
			wantType: TypeUpstash,
		},
		{
			name:     "connection based redis",
			env:      map[string]string{"REDIS_URL": "redis://localhost:6380", "REDIS_PASSWORD": "pw"},
			wantType: TypeRedis,
		},
		{
			name:     "upstash url without token",
			env:      map[string]string{"UPSTASH_REDIS_REST_URL": "https://example.upstash.io", "REDIS_URL": "redis://localhost:6379"},
			wantType: TypeRedis,
		},
		{
			name: "invalid upstash falls through",
			env: map[string]string{
				"UPSTASH_REDIS_REST_URL":   "ftp://example",
				"UPSTASH_REDIS_REST_TOKEN": "token",
				"REDIS_URL":                "redis://localhost:6379",
			},
			wantType: TypeRedis,
		},
		{
			name:    "nothing configured",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:       "invalid redis url",
			env:        map[string]string{"REDIS_URL": "http://localhost"},
			wantErr:    true,
			initFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Resolve(MapEnv(tt.env), Options{Logger: &logger})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotConfigured)
				assert.Equal(t, tt.initFailed, errors.Is(err, ErrInitFailed))
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			defer b.Close()
			assert.Equal(t, tt.wantType, b.Type())
		})
	}
}
