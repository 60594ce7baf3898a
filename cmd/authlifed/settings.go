package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Daemon keys. Engine keys are read by authlife.LoadConfigFrom.
const (
	keyLogLevel       = "LOG_LEVEL"
	keyHTTPAddr       = "HTTP_ADDR"
	keyRedisAddr      = "REDIS_ADDR"
	keyDatabaseURL    = "DATABASE_URL"
	keyAdminToken     = "ADMIN_TOKEN"
	keySweepInterval  = "SWEEP_INTERVAL"
	keyKeysinkChannel = "KEYSINK_REDIS_CHANNEL"
	keyKeysinkAWS     = "KEYSINK_AWS_SECRET_ID"
	keyAuditLog       = "AUDIT_LOG"
)

const (
	defaultHTTPAddr      = ":8080"
	defaultSweepInterval = 5 * time.Minute
)

type settings struct {
	LogLevel       string
	HTTPAddr       string
	RedisAddr      string
	DatabaseURL    string
	AdminToken     string
	SweepInterval  time.Duration
	KeysinkChannel string
	KeysinkAWS     string
	AuditLog       bool
}

func loadSettings(v *viper.Viper) settings {
	s := settings{
		LogLevel:       strings.TrimSpace(v.GetString(keyLogLevel)),
		HTTPAddr:       strings.TrimSpace(v.GetString(keyHTTPAddr)),
		RedisAddr:      strings.TrimSpace(v.GetString(keyRedisAddr)),
		DatabaseURL:    strings.TrimSpace(v.GetString(keyDatabaseURL)),
		AdminToken:     v.GetString(keyAdminToken),
		KeysinkChannel: strings.TrimSpace(v.GetString(keyKeysinkChannel)),
		KeysinkAWS:     strings.TrimSpace(v.GetString(keyKeysinkAWS)),
		AuditLog:       v.GetBool(keyAuditLog),
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.HTTPAddr == "" {
		s.HTTPAddr = defaultHTTPAddr
	}
	s.SweepInterval = defaultSweepInterval
	if raw := strings.TrimSpace(v.GetString(keySweepInterval)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			s.SweepInterval = d
		}
	}
	return s
}
