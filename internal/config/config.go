package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/stagechat/session-gateway/pkg/config"
	"github.com/stagechat/session-gateway/pkg/database"
	"github.com/stagechat/session-gateway/pkg/log"
	"github.com/stagechat/session-gateway/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	Hijack    HijackConfig
	Profile   ProfileConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	AuthToken      string        `mapstructure:"auth_token"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string `mapstructure:"db_name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	CachePrefix string `mapstructure:"cache_prefix"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type HijackConfig struct {
	CountdownSeconds        int  `mapstructure:"countdown_seconds"`
	OutbidRestartsCountdown bool `mapstructure:"outbid_restarts_countdown"`
}

type ProfileConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("upstream.base_url", "http://localhost:9000")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.reconnect_wait", "3s")
	v.SetDefault("upstream.max_idle_conns", 20)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "./session-gateway.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_prefix", "session-gateway")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "session-activity")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "session-gateway")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("hijack.countdown_seconds", 20)
	v.SetDefault("hijack.outbid_restarts_countdown", true)
	v.SetDefault("profile.ttl", "10m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "session-gateway")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("upstream.base_url", "UPSTREAM_BASE_URL")
	v.BindEnv("upstream.auth_token", "UPSTREAM_AUTH_TOKEN")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.db_name", "DB_NAME")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Upstream.Timeout = parseDuration(v, "upstream.timeout", 30*time.Second)
	cfg.Upstream.ReconnectWait = parseDuration(v, "upstream.reconnect_wait", 3*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Profile.TTL = parseDuration(v, "profile.ttl", 10*time.Minute)

	return &cfg, nil
}

// DatabaseConfig converts to the shared database package config.
func (c *Config) DatabaseConfig() *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		DBName:          c.Database.DBName,
		SSLMode:         c.Database.SSLMode,
		FilePath:        c.Database.FilePath,
		MaxIdleConns:    c.Database.MaxIdleConns,
		MaxOpenConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// PubSubConfig converts to the shared pubsub package config.
func (c *Config) PubSubConfig() pubsub.RedisConfig {
	cfg := pubsub.DefaultConfig()
	cfg.Address = c.Redis.Address
	cfg.Password = c.Redis.Password
	cfg.DB = c.Redis.DB
	return cfg
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
