package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Australia/Sydney"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PG struct {
		DSN            string        `envconfig:"PG_DSN"`
		MaxConns       int32         `envconfig:"PG_MAX_CONNS" default:"5"`
		ConnectTimeout time.Duration `envconfig:"PG_CONNECT_TIMEOUT" default:"5s"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	AMQP struct {
		URL   string `envconfig:"AMQP_URL"`
		Queue string `envconfig:"SYNC_QUEUE" default:"sync_jobs"`
	} `envconfig:""`

	Sync struct {
		Interval time.Duration `envconfig:"SYNC_INTERVAL" default:"24h"`
		LockTTL  time.Duration `envconfig:"SYNC_LOCK_TTL" default:"30m"`
	} `envconfig:""`

	Recommend struct {
		WindowDays          int     `envconfig:"WINDOW_DAYS" default:"30"`
		CategoryCount       int     `envconfig:"CATEGORY_COUNT" default:"5"`
		TopCategories       int     `envconfig:"TOP_CATEGORIES" default:"3"`
		CategorySampleMax   int     `envconfig:"CATEGORY_SAMPLE_MAX" default:"50"`
		ChallengeSampleMax  int     `envconfig:"CHALLENGE_SAMPLE_MAX" default:"10"`
		ChallengeCandidates int     `envconfig:"CHALLENGE_CANDIDATES_MAX" default:"20"`
		PopularLimit        int     `envconfig:"POPULAR_LIMIT" default:"500"`
		PopularPad          int     `envconfig:"POPULAR_PAD" default:"30"`
		PoolTarget          int     `envconfig:"POOL_TARGET" default:"100"`
		CancelWeight        float64 `envconfig:"CANCEL_WEIGHT" default:"0.6"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
