package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Config struct {
	HttpPort     int    `json:"http_port"`
	DbConnString string `json:"db_conn_string"`
	RedisAddr    string `json:"redis_addr"`

	GatewayUrl        string        `json:"gateway_url"`
	GatewayTimeoutStr string        `json:"gateway_timeout"`
	GatewayTimeout    time.Duration `json:"-"`

	TickIntervalStr string        `json:"tick_interval"`
	TickInterval    time.Duration `json:"-"`
	Workers         int           `json:"workers"`
	FanOut          int           `json:"fan_out"`
	StaleAfterStr   string        `json:"stale_after"`
	StaleAfter      time.Duration `json:"-"`
	RecentLogs      int           `json:"recent_logs"`

	RatePerHour    int           `json:"rate_per_hour"`
	RateBurst      int           `json:"rate_burst"`
	RateMaxWaitStr string        `json:"rate_max_wait"`
	RateMaxWait    time.Duration `json:"-"`

	MaxRetries        int           `json:"max_retries"`
	RetryBaseDelayStr string        `json:"retry_base_delay"`
	RetryBaseDelay    time.Duration `json:"-"`
	RetryMaxDelayStr  string        `json:"retry_max_delay"`
	RetryMaxDelay     time.Duration `json:"-"`
}

// ReadConfigJson reads json formatted configuration from the given file
func ReadConfigJson(configFile string) (*Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	cfg := new(Config)

	if err = json.Unmarshal(content, cfg); err != nil {
		return nil, err
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"gateway_timeout", cfg.GatewayTimeoutStr, &cfg.GatewayTimeout},
		{"tick_interval", cfg.TickIntervalStr, &cfg.TickInterval},
		{"stale_after", cfg.StaleAfterStr, &cfg.StaleAfter},
		{"rate_max_wait", cfg.RateMaxWaitStr, &cfg.RateMaxWait},
		{"retry_base_delay", cfg.RetryBaseDelayStr, &cfg.RetryBaseDelay},
		{"retry_max_delay", cfg.RetryMaxDelayStr, &cfg.RetryMaxDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		if *d.dst, err = time.ParseDuration(d.raw); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
	}

	return cfg, nil
}
