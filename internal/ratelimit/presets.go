package ratelimit

import (
	"fmt"
	"net/http"
	"sort"
	"time"
)

// Class 预置配置面向的调用方类别
type Class string

const (
	ClassPublic  Class = "public"
	ClassUser    Class = "user"
	ClassOrg     Class = "org"
	ClassPayment Class = "payment"
	ClassAdmin   Class = "admin"
	ClassWebhook Class = "webhook"
)

type preset struct {
	class  Class
	config Config
}

var presets = buildPresets()

// staticKey 返回固定键的生成函数，用于回调来源只有一个身份的场景
func staticKey(key string) KeyGenerator {
	return func(*http.Request, Caller) string {
		return key
	}
}

// orgVariant 复制用户级配置并改为按组织限流，requests 大于 0 时覆盖配额
func orgVariant(base Config, requests int) Config {
	c := base
	c.KeyType = KeyTypeOrg
	if requests > 0 {
		c.Requests = requests
	}
	return c
}

func buildPresets() map[string]preset {
	aiChat := Config{Requests: 30, Window: time.Minute, KeyType: KeyTypeUser}
	aiCoach := Config{Requests: 20, Window: time.Minute, KeyType: KeyTypeUser}
	userAPI := Config{Requests: 300, Window: time.Minute, KeyType: KeyTypeUser}
	userExports := Config{
		Requests: 5,
		Window:   time.Hour,
		KeyType:  KeyTypeUser,
		Message:  "Export limit reached. Please wait before requesting another export.",
	}

	table := map[string]preset{
		// 公开接口，按 IP 限流
		"contactForm":   {ClassPublic, Config{Requests: 5, Window: time.Minute, KeyType: KeyTypeIP}},
		"newsletter":    {ClassPublic, Config{Requests: 3, Window: time.Minute, KeyType: KeyTypeIP}},
		"publicApi":     {ClassPublic, Config{Requests: 100, Window: time.Minute, KeyType: KeyTypeIP}},
		"authLogin":     {ClassPublic, Config{Requests: 10, Window: 15 * time.Minute, KeyType: KeyTypeIP, Message: "Too many login attempts. Please try again later."}},
		"passwordReset": {ClassPublic, Config{Requests: 3, Window: time.Hour, KeyType: KeyTypeIP}},
		"signup":        {ClassPublic, Config{Requests: 5, Window: time.Hour, KeyType: KeyTypeIP}},

		// 认证用户
		"aiChat":           {ClassUser, aiChat},
		"aiCoach":          {ClassUser, aiCoach},
		"embeddingsSearch": {ClassUser, Config{Requests: 60, Window: time.Minute, KeyType: KeyTypeUser}},
		"userApi":          {ClassUser, userAPI},
		"fileUpload":       {ClassUser, Config{Requests: 20, Window: time.Hour, KeyType: KeyTypeUser}},
		"userExports":      {ClassUser, userExports},

		// 组织级
		"aiChatOrg":          {ClassOrg, orgVariant(aiChat, 120)},
		"aiCoachOrg":         {ClassOrg, orgVariant(aiCoach, 80)},
		"orgApi":             {ClassOrg, orgVariant(userAPI, 1000)},
		"orgExports":         {ClassOrg, orgVariant(userExports, 10)},
		"embeddingsGenerate": {ClassOrg, Config{Requests: 2, Window: time.Hour, KeyType: KeyTypeOrg}},

		// 支付
		"checkout":           {ClassPayment, Config{Requests: 10, Window: time.Hour, KeyType: KeyTypeUser}},
		"subscriptionUpdate": {ClassPayment, Config{Requests: 5, Window: time.Hour, KeyType: KeyTypeUser}},
		"billingPortal":      {ClassPayment, Config{Requests: 20, Window: time.Hour, KeyType: KeyTypeUser}},

		// 管理员
		"adminApi":  {ClassAdmin, Config{Requests: 120, Window: time.Minute, KeyType: KeyTypeUser}},
		"adminBulk": {ClassAdmin, Config{Requests: 10, Window: time.Hour, KeyType: KeyTypeUser}},

		// Webhook 回调
		"webhookStripe":  {ClassWebhook, Config{Requests: 100, Window: time.Minute, KeyType: KeyTypeCustom, KeyGenerator: staticKey("webhook:stripe")}},
		"webhookGeneric": {ClassWebhook, Config{Requests: 50, Window: time.Minute, KeyType: KeyTypeIP}},
	}

	for name, p := range table {
		p.config.Name = name
		table[name] = p
	}

	return table
}

// Preset 按名称查找预置配置
func Preset(name string) (Config, bool) {
	p, ok := presets[name]
	return p.config, ok
}

// MustPreset 按名称查找预置配置，不存在时 panic
func MustPreset(name string) Config {
	c, ok := Preset(name)
	if !ok {
		panic(fmt.Sprintf("ratelimit: unknown preset %q", name))
	}
	return c
}

// PresetNames 返回所有预置配置名称，按字母排序
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetClass 返回预置配置所属类别
func PresetClass(name string) (Class, bool) {
	p, ok := presets[name]
	return p.class, ok
}

// PresetsByClass 返回指定类别的预置配置，按名称排序
func PresetsByClass(class Class) []Config {
	var configs []Config
	for _, p := range presets {
		if p.class == class {
			configs = append(configs, p.config)
		}
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Name < configs[j].Name
	})
	return configs
}
