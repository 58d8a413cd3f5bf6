package config

import (
	"strings"
	"time"
)

// RateLimitPolicy allows Max requests per Window for one group of routes.
// It is enforced as a token bucket of capacity Max refilled by one token every
// Window/Max.
type RateLimitPolicy struct {
	Name   string
	Max    int
	Window time.Duration
}

// RefillInterval is the time needed to earn back a single request.
func (p RateLimitPolicy) RefillInterval() time.Duration {
	if p.Max < 1 {
		return p.Window
	}
	return p.Window / time.Duration(p.Max)
}

type RateLimitConfig struct {
	Enabled     bool
	KeyStrategy string
	Prefix      string
	Debug       bool

	Login          RateLimitPolicy
	Register       RateLimitPolicy
	Recovery       RateLimitPolicy
	PasswordChange RateLimitPolicy
	DeleteAccount  RateLimitPolicy
	AuthGeneral    RateLimitPolicy
}

func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
		Login:          loadPolicy("login", 5, 15*time.Minute),
		Register:       loadPolicy("registro", 3, time.Hour),
		Recovery:       loadPolicy("recovery", 3, time.Hour),
		PasswordChange: loadPolicy("password_change", 3, time.Hour),
		DeleteAccount:  loadPolicy("delete_account", 2, 24*time.Hour),
		AuthGeneral:    loadPolicy("auth_general", 20, 15*time.Minute),
	}
}

// loadPolicy reads RATE_LIMIT_<NAME>_MAX and RATE_LIMIT_<NAME>_WINDOW.
func loadPolicy(name string, max int, window time.Duration) RateLimitPolicy {
	key := "RATE_LIMIT_" + strings.ToUpper(name)
	p := RateLimitPolicy{
		Name:   name,
		Max:    envInt(key+"_MAX", max),
		Window: envDur(key+"_WINDOW", window),
	}
	if p.Max < 1 {
		p.Max = 1
	}
	if p.Window <= 0 {
		p.Window = window
	}
	return p
}
