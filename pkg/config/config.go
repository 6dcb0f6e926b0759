package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Realtime     RealtimeConfig
	Chat         ChatConfig
	MCP          MCPConfig
	Invalidation InvalidationConfig
	Calendar     CalendarConfig
	Discord      DiscordConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	ListenChannel string
}

// DSN renders the libpq connection string shared by sqlx, the change listener and migrations.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// URL renders the connection string in URL form as expected by golang-migrate.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RealtimeConfig tunes the pub/sub broker and websocket gateway.
type RealtimeConfig struct {
	SubscriberBuffer int
	RelayEnabled     bool
	RelayPrefix      string
	MaxMessageBytes  int64
}

// ChatConfig controls the chat channel registry.
type ChatConfig struct {
	IdleTimeout     time.Duration
	JanitorInterval time.Duration
}

// MCPConfig configures MCP token issuance.
type MCPConfig struct {
	Secret string
	Issuer string
}

// InvalidationConfig configures the cache revalidation worker.
type InvalidationConfig struct {
	RevalidateURL    string
	RevalidateSecret string
	PollInterval     time.Duration
	Workers          int
	Retries          int
	RequestTimeout   time.Duration
}

// CalendarConfig configures ICS export and signed feed URLs.
type CalendarConfig struct {
	FeedSecret string
	FeedTTL    time.Duration
	CacheTTL   time.Duration
	PublicURL  string
}

// DiscordConfig enables staff notifications for new help requests.
type DiscordConfig struct {
	Enabled   bool
	BotToken  string
	ChannelID string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		ListenChannel: v.GetString("DB_LISTEN_CHANNEL"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Realtime = RealtimeConfig{
		SubscriberBuffer: v.GetInt("REALTIME_SUBSCRIBER_BUFFER"),
		RelayEnabled:     v.GetBool("REALTIME_RELAY_ENABLED"),
		RelayPrefix:      v.GetString("REALTIME_RELAY_PREFIX"),
		MaxMessageBytes:  v.GetInt64("REALTIME_MAX_MESSAGE_BYTES"),
	}

	cfg.Chat = ChatConfig{
		IdleTimeout:     parseDuration(v.GetString("CHAT_IDLE_TIMEOUT"), 10*time.Minute),
		JanitorInterval: parseDuration(v.GetString("CHAT_JANITOR_INTERVAL"), time.Minute),
	}

	cfg.MCP = MCPConfig{
		Secret: v.GetString("MCP_TOKEN_SECRET"),
		Issuer: v.GetString("MCP_TOKEN_ISSUER"),
	}

	cfg.Invalidation = InvalidationConfig{
		RevalidateURL:    v.GetString("REVALIDATE_URL"),
		RevalidateSecret: v.GetString("REVALIDATE_SECRET"),
		PollInterval:     parseDuration(v.GetString("INVALIDATION_POLL_INTERVAL"), 5*time.Second),
		Workers:          v.GetInt("INVALIDATION_WORKERS"),
		Retries:          v.GetInt("INVALIDATION_RETRIES"),
		RequestTimeout:   parseDuration(v.GetString("INVALIDATION_REQUEST_TIMEOUT"), 10*time.Second),
	}

	cfg.Calendar = CalendarConfig{
		FeedSecret: v.GetString("CALENDAR_FEED_SECRET"),
		FeedTTL:    parseDuration(v.GetString("CALENDAR_FEED_TTL"), 180*24*time.Hour),
		CacheTTL:   parseDuration(v.GetString("CALENDAR_CACHE_TTL"), 15*time.Minute),
		PublicURL:  v.GetString("PUBLIC_URL"),
	}

	cfg.Discord = DiscordConfig{
		Enabled:   v.GetBool("ENABLE_DISCORD"),
		BotToken:  v.GetString("DISCORD_BOT_TOKEN"),
		ChannelID: v.GetString("DISCORD_CHANNEL_ID"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pawtograder")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_LISTEN_CHANNEL", "pawtograder_table_changes")

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "authenticated")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REALTIME_SUBSCRIBER_BUFFER", 256)
	v.SetDefault("REALTIME_RELAY_ENABLED", false)
	v.SetDefault("REALTIME_RELAY_PREFIX", "realtime:")
	v.SetDefault("REALTIME_MAX_MESSAGE_BYTES", 8192)

	v.SetDefault("CHAT_IDLE_TIMEOUT", "10m")
	v.SetDefault("CHAT_JANITOR_INTERVAL", "1m")

	v.SetDefault("MCP_TOKEN_SECRET", "")
	v.SetDefault("MCP_TOKEN_ISSUER", "pawtograder")

	v.SetDefault("REVALIDATE_URL", "")
	v.SetDefault("REVALIDATE_SECRET", "")
	v.SetDefault("INVALIDATION_POLL_INTERVAL", "5s")
	v.SetDefault("INVALIDATION_WORKERS", 2)
	v.SetDefault("INVALIDATION_RETRIES", 3)
	v.SetDefault("INVALIDATION_REQUEST_TIMEOUT", "10s")

	v.SetDefault("CALENDAR_FEED_SECRET", "dev_calendar_secret")
	v.SetDefault("CALENDAR_FEED_TTL", "4320h")
	v.SetDefault("CALENDAR_CACHE_TTL", "15m")
	v.SetDefault("PUBLIC_URL", "http://localhost:8080")

	v.SetDefault("ENABLE_DISCORD", false)
	v.SetDefault("DISCORD_BOT_TOKEN", "")
	v.SetDefault("DISCORD_CHANNEL_ID", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
