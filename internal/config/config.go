package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Pipeline  PipelineConfig
	Reviewer  ReviewerConfig
	Sweep     SweepConfig
	Jobs      JobsConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	ClaimPerMin   int
	SubmitPerMin  int
	ProjectPerDay int
}

type PipelineConfig struct {
	ClaimTTL      time.Duration
	WorkerTaskCap int
	MaxAttempts   int // 0 = unbounded resubmissions
}

type ReviewerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type SweepConfig struct {
	Secret   string
	Interval time.Duration
}

type JobsConfig struct {
	RetentionDays int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("database.path", "reelforge.db")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.claim_per_min", 30)
	viper.SetDefault("ratelimit.submit_per_min", 10)
	viper.SetDefault("ratelimit.project_per_day", 5)
	viper.SetDefault("pipeline.claim_ttl_hours", 48)
	viper.SetDefault("pipeline.worker_task_cap", 3)
	viper.SetDefault("pipeline.max_attempts", 0)
	viper.SetDefault("reviewer.base_url", "")
	viper.SetDefault("reviewer.api_key", "")
	viper.SetDefault("reviewer.timeout_seconds", 30)
	viper.SetDefault("sweep.secret", "")
	viper.SetDefault("sweep.interval_minutes", 5)
	viper.SetDefault("jobs.retention_days", 7)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			ClaimPerMin:   viper.GetInt("ratelimit.claim_per_min"),
			SubmitPerMin:  viper.GetInt("ratelimit.submit_per_min"),
			ProjectPerDay: viper.GetInt("ratelimit.project_per_day"),
		},
		Pipeline: PipelineConfig{
			ClaimTTL:      time.Duration(viper.GetInt("pipeline.claim_ttl_hours")) * time.Hour,
			WorkerTaskCap: viper.GetInt("pipeline.worker_task_cap"),
			MaxAttempts:   viper.GetInt("pipeline.max_attempts"),
		},
		Reviewer: ReviewerConfig{
			BaseURL: viper.GetString("reviewer.base_url"),
			APIKey:  viper.GetString("reviewer.api_key"),
			Timeout: time.Duration(viper.GetInt("reviewer.timeout_seconds")) * time.Second,
		},
		Sweep: SweepConfig{
			Secret:   viper.GetString("sweep.secret"),
			Interval: time.Duration(viper.GetInt("sweep.interval_minutes")) * time.Minute,
		},
		Jobs: JobsConfig{
			RetentionDays: viper.GetInt("jobs.retention_days"),
		},
	}

	return cfg, nil
}
