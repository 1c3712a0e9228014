package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	OIDC       OIDCConfig
	Gateway    GatewayConfig
	RateLimit  RateLimitConfig
	R2         R2Config
	PostBridge PostBridgeConfig
	Worker     WorkerConfig
	Render     RenderConfig
	Bulk       BulkConfig
	Sentry     SentryConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	ApiDomain string
}

type LogConfig struct {
	Level  string
	Format string // json | console
}

type DatabaseConfig struct {
	Driver       string // postgres | sqlite
	URL          string
	MaxOpenConns int
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

type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	CreateVideoPerHour int
	BulkPerHour        int
	UploadPerHour      int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type PostBridgeConfig struct {
	BaseURL string
	Timeout int // seconds
}

type WorkerConfig struct {
	ID           string
	Enabled      bool
	PollInterval time.Duration
	ScratchDir   string
	StaleAfter   time.Duration
	ReapInterval time.Duration
	FetchTimeout int // seconds
}

type RenderConfig struct {
	FFmpegPath string
	Width      int
	Height     int
	FPS        int
}

type BulkConfig struct {
	MaxDailyPosts   int
	BatchSize       int
	BatchDelay      time.Duration
	WindowStartHour int
	WindowEndHour   int
	JitterMinutes   int
}

type SentryConfig struct {
	DSN string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("DATABASE_URL")
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("SENTRY_DSN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("log.level", "LOG_LEVEL")
	_ = viper.BindEnv("log.format", "LOG_FORMAT")
	_ = viper.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("ratelimit.create_video_per_hour", "RATELIMIT_CREATE_VIDEO_PER_HOUR")
	_ = viper.BindEnv("ratelimit.bulk_per_hour", "RATELIMIT_BULK_PER_HOUR")
	_ = viper.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("postbridge.base_url", "POSTBRIDGE_BASE_URL")
	_ = viper.BindEnv("postbridge.timeout", "POSTBRIDGE_TIMEOUT")
	_ = viper.BindEnv("worker.id", "WORKER_ID")
	_ = viper.BindEnv("worker.enabled", "WORKER_ENABLED")
	_ = viper.BindEnv("worker.poll_interval_ms", "POLL_INTERVAL")
	_ = viper.BindEnv("worker.scratch_dir", "WORKER_SCRATCH_DIR")
	_ = viper.BindEnv("worker.stale_after", "WORKER_STALE_AFTER")
	_ = viper.BindEnv("worker.reap_interval", "WORKER_REAP_INTERVAL")
	_ = viper.BindEnv("worker.fetch_timeout", "WORKER_FETCH_TIMEOUT")
	_ = viper.BindEnv("render.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("render.width", "RENDER_WIDTH")
	_ = viper.BindEnv("render.height", "RENDER_HEIGHT")
	_ = viper.BindEnv("render.fps", "RENDER_FPS")
	_ = viper.BindEnv("bulk.max_daily_posts", "BULK_MAX_DAILY_POSTS")
	_ = viper.BindEnv("bulk.batch_size", "BULK_BATCH_SIZE")
	_ = viper.BindEnv("bulk.batch_delay_ms", "BULK_BATCH_DELAY_MS")
	_ = viper.BindEnv("bulk.window_start_hour", "BULK_WINDOW_START_HOUR")
	_ = viper.BindEnv("bulk.window_end_hour", "BULK_WINDOW_END_HOUR")
	_ = viper.BindEnv("bulk.jitter_minutes", "BULK_JITTER_MINUTES")
	_ = viper.BindEnv("sentry.dsn", "SENTRY_DSN")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.create_video_per_hour", 30)
	viper.SetDefault("ratelimit.bulk_per_hour", 5)
	viper.SetDefault("ratelimit.upload_per_hour", 200)

	// Post-bridge defaults
	viper.SetDefault("postbridge.base_url", "https://api.post-bridge.com")
	viper.SetDefault("postbridge.timeout", 60)

	// Worker defaults
	hostname, _ := os.Hostname()
	viper.SetDefault("worker.id", "worker-"+hostname)
	viper.SetDefault("worker.enabled", true)
	viper.SetDefault("worker.poll_interval_ms", 5000)
	viper.SetDefault("worker.scratch_dir", os.TempDir())
	viper.SetDefault("worker.stale_after", "2h")
	viper.SetDefault("worker.reap_interval", "5m")
	viper.SetDefault("worker.fetch_timeout", 120)

	// Render defaults (vertical 1080p)
	viper.SetDefault("render.ffmpeg_path", "ffmpeg")
	viper.SetDefault("render.width", 1080)
	viper.SetDefault("render.height", 1920)
	viper.SetDefault("render.fps", 30)

	// Bulk dispatch defaults
	viper.SetDefault("bulk.max_daily_posts", 100)
	viper.SetDefault("bulk.batch_size", 5)
	viper.SetDefault("bulk.batch_delay_ms", 3000)
	viper.SetDefault("bulk.window_start_hour", 9)
	viper.SetDefault("bulk.window_end_hour", 21)
	viper.SetDefault("bulk.jitter_minutes", 15)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Database: DatabaseConfig{
			Driver:       viper.GetString("database.driver"),
			URL:          viper.GetString("database.url"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
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
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("oidc.issuer"),
			ClientID: viper.GetString("oidc.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			CreateVideoPerHour: viper.GetInt("ratelimit.create_video_per_hour"),
			BulkPerHour:        viper.GetInt("ratelimit.bulk_per_hour"),
			UploadPerHour:      viper.GetInt("ratelimit.upload_per_hour"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		PostBridge: PostBridgeConfig{
			BaseURL: viper.GetString("postbridge.base_url"),
			Timeout: viper.GetInt("postbridge.timeout"),
		},
		Worker: WorkerConfig{
			ID:           viper.GetString("worker.id"),
			Enabled:      viper.GetBool("worker.enabled"),
			PollInterval: time.Duration(viper.GetInt("worker.poll_interval_ms")) * time.Millisecond,
			ScratchDir:   viper.GetString("worker.scratch_dir"),
			StaleAfter:   viper.GetDuration("worker.stale_after"),
			ReapInterval: viper.GetDuration("worker.reap_interval"),
			FetchTimeout: viper.GetInt("worker.fetch_timeout"),
		},
		Render: RenderConfig{
			FFmpegPath: viper.GetString("render.ffmpeg_path"),
			Width:      viper.GetInt("render.width"),
			Height:     viper.GetInt("render.height"),
			FPS:        viper.GetInt("render.fps"),
		},
		Bulk: BulkConfig{
			MaxDailyPosts:   viper.GetInt("bulk.max_daily_posts"),
			BatchSize:       viper.GetInt("bulk.batch_size"),
			BatchDelay:      time.Duration(viper.GetInt("bulk.batch_delay_ms")) * time.Millisecond,
			WindowStartHour: viper.GetInt("bulk.window_start_hour"),
			WindowEndHour:   viper.GetInt("bulk.window_end_hour"),
			JitterMinutes:   viper.GetInt("bulk.jitter_minutes"),
		},
		Sentry: SentryConfig{
			DSN: viper.GetString("sentry.dsn"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the worker and dispatcher cannot run with
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Worker.ID == "" {
		return fmt.Errorf("WORKER_ID must not be empty")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Worker.PollInterval)
	}
	if c.Bulk.WindowEndHour <= c.Bulk.WindowStartHour || c.Bulk.WindowStartHour < 0 || c.Bulk.WindowEndHour > 24 {
		return fmt.Errorf("invalid bulk posting window %d-%d", c.Bulk.WindowStartHour, c.Bulk.WindowEndHour)
	}
	return nil
}

// StorageConfigured reports whether R2 credentials are present
func (c *Config) StorageConfigured() bool {
	return c.R2.AccountID != "" && c.R2.AccessKeyID != "" && c.R2.SecretAccessKey != "" && c.R2.BucketName != ""
}
