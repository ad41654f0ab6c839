package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	LLM      LLMConfig      `yaml:"llm"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	Env            string        `yaml:"env"`
	LogLevel       string        `yaml:"log_level"`
	SessionSecret  string        `yaml:"session_secret"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigin     string        `yaml:"cors_origin"`

	// 按客户端 IP 的固定窗口限流，RateLimitMax <= 0 关闭
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	RateLimitMax    int           `yaml:"rate_limit_max"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig Addr 为空时使用进程内锁
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	SiteURL  string `yaml:"site_url"`
}

type JobsConfig struct {
	ReconcileVotesSpec string `yaml:"reconcile_votes_spec"`
	PruneViewsSpec     string `yaml:"prune_views_spec"`
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port != "" && c.Username != "" && c.Password != "" && c.From != ""
}

func (c LLMConfig) Enabled() bool {
	return c.BaseURL != "" && c.Token != ""
}

func (c *Config) IsDev() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			Env:            "dev",
			LogLevel:       "info",
			SessionSecret:  "secret_key_change_me",
			RequestTimeout: 15 * time.Second,
			CORSOrigin:     "http://localhost:5173",

			RateLimitWindow: 15 * time.Minute,
			RateLimitMax:    100,
		},
		Database: DatabaseConfig{
			DSN:             "host=localhost user=postgres password=postgres dbname=stackit port=5432 sslmode=disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			LockTTL: 5 * time.Second,
		},
		LLM: LLMConfig{
			Model:   "gemini-2.0-flash",
			Timeout: 30 * time.Second,
		},
		SMTP: SMTPConfig{
			Port:    "587",
			SiteURL: "http://localhost:5173",
		},
		Jobs: JobsConfig{
			ReconcileVotesSpec: "0 3 * * *", // 每天凌晨 3 点
			PruneViewsSpec:     "@hourly",
		},
	}
}

// Load 先读取 yaml（文件不存在时忽略），再用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	overrideString(&cfg.Server.Port, "PORT")
	overrideString(&cfg.Server.Env, "ENV")
	overrideString(&cfg.Server.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.Server.SessionSecret, "SESSION_SECRET")
	overrideDuration(&cfg.Server.RequestTimeout, "REQUEST_TIMEOUT")
	overrideString(&cfg.Server.CORSOrigin, "CORS_ORIGIN")
	overrideDuration(&cfg.Server.RateLimitWindow, "RATE_LIMIT_WINDOW")
	overrideInt(&cfg.Server.RateLimitMax, "RATE_LIMIT_MAX")

	overrideString(&cfg.Database.DSN, "DATABASE_URL")
	overrideInt(&cfg.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	overrideInt(&cfg.Database.MaxIdleConns, "DB_MAX_IDLE_CONNS")

	overrideString(&cfg.Redis.Addr, "REDIS_ADDR")
	overrideString(&cfg.Redis.Password, "REDIS_PASSWORD")
	overrideInt(&cfg.Redis.DB, "REDIS_DB")

	overrideString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	overrideString(&cfg.LLM.Token, "LLM_TOKEN")
	overrideString(&cfg.LLM.Model, "LLM_MODEL")
	overrideDuration(&cfg.LLM.Timeout, "LLM_TIMEOUT")

	overrideString(&cfg.SMTP.Host, "SMTP_HOST")
	overrideString(&cfg.SMTP.Port, "SMTP_PORT")
	overrideString(&cfg.SMTP.Username, "SMTP_USER")
	overrideString(&cfg.SMTP.Password, "SMTP_PASS")
	overrideString(&cfg.SMTP.From, "SMTP_FROM")
	overrideString(&cfg.SMTP.SiteURL, "SITE_URL")

	overrideString(&cfg.Jobs.ReconcileVotesSpec, "JOB_RECONCILE_VOTES")
	overrideString(&cfg.Jobs.PruneViewsSpec, "JOB_PRUNE_VIEWS")

	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func overrideDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
