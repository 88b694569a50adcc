package config

import "time"

type AppConfig struct {
	BotToken string `yaml:"bot_token" env:"SOKOL_BOT_TOKEN"`
	// TelegramAPIURL points at a self-hosted bot-api server.
	// Empty means api.telegram.org.
	TelegramAPIURL string `yaml:"telegram_api_url" env:"SOKOL_TELEGRAM_API_URL"`
	DBDriver       string `yaml:"db_driver" env:"SOKOL_DB_DRIVER" env-default:"sqlite"`
	DBPath         string `yaml:"db_path" env:"SOKOL_DB_PATH" env-default:"data/sokol.db"`
	DBURL          string `yaml:"db_url" env:"SOKOL_DB_URL"`
	ReportChatID   int64  `yaml:"report_chat_id" env:"SOKOL_REPORT_CHAT_ID"`
	ListenAddr     string `yaml:"listen_addr" env:"SOKOL_LISTEN_ADDR"`
	APIToken       string `yaml:"api_token" env:"SOKOL_API_TOKEN"`

	Broadcast BroadcastConfig `yaml:"broadcast"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Reports   ReportsConfig   `yaml:"reports"`
	Retention RetentionConfig `yaml:"retention"`

	PollTimeoutSec int `yaml:"poll_timeout_sec" env:"SOKOL_POLL_TIMEOUT_SEC" env-default:"30"`
}

type BroadcastConfig struct {
	Concurrency    int     `yaml:"concurrency" env:"SOKOL_BROADCAST_CONCURRENCY" env-default:"8"`
	SendRatePerSec float64 `yaml:"send_rate_per_sec" env:"SOKOL_SEND_RATE_PER_SEC" env-default:"25"`
}

type SessionsConfig struct {
	IdleTTL time.Duration `yaml:"idle_ttl" env:"SOKOL_SESSION_IDLE_TTL" env-default:"30m"`
}

type ReportsConfig struct {
	ListLimit int `yaml:"list_limit" env:"SOKOL_REPORT_LIST_LIMIT" env-default:"10"`
}

type RetentionConfig struct {
	DeliveryDays int    `yaml:"delivery_days" env:"SOKOL_DELIVERY_RETENTION_DAYS" env-default:"30"`
	Schedule     string `yaml:"schedule" env:"SOKOL_RETENTION_SCHEDULE" env-default:"0 3 * * *"`
}

func (c *AppConfig) EffectiveConcurrency() int {
	if c == nil || c.Broadcast.Concurrency <= 0 {
		return 8
	}
	return c.Broadcast.Concurrency
}

func (c *AppConfig) EffectiveIdleTTL() time.Duration {
	if c == nil || c.Sessions.IdleTTL <= 0 {
		return 30 * time.Minute
	}
	return c.Sessions.IdleTTL
}

func (c *AppConfig) EffectiveListLimit() int {
	if c == nil || c.Reports.ListLimit <= 0 {
		return 10
	}
	return c.Reports.ListLimit
}
