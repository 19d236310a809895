package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// DefaultPassingScore is used when the configured threshold is missing or not
// a number.
const DefaultPassingScore = 70

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Broker    BrokerConfig    `mapstructure:"broker"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// runtime flags, set from the command line rather than the config file
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// BrokerConfig carries the RabbitMQ connection URL and the logical
// destinations: the two peer-service queues and our own event queue.
type BrokerConfig struct {
	URL           string        `mapstructure:"url"`
	LessonsQueue  string        `mapstructure:"lessons_queue"`
	UsersQueue    string        `mapstructure:"users_queue"`
	EventQueue    string        `mapstructure:"event_queue"`
	PrefetchCount int           `mapstructure:"prefetch_count"`
	RPCTimeout    time.Duration `mapstructure:"rpc_timeout_seconds"`
}

// ScoringConfig keeps the passing score as the raw configured string so a
// bogus value degrades to the default instead of failing unmarshal.
type ScoringConfig struct {
	PassingScore string `mapstructure:"passing_score"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// PassingThreshold parses the configured passing score, falling back to
// DefaultPassingScore on empty or non-numeric values.
func (c *Config) PassingThreshold() int {
	v, err := strconv.Atoi(c.Scoring.PassingScore)
	if err != nil {
		return DefaultPassingScore
	}
	return v
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("QUIZ_ANALYTICS")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Broker
	viper.BindEnv("broker.url", "BROKER_URL")
	viper.BindEnv("broker.lessons_queue", "BROKER_LESSONS_QUEUE")
	viper.BindEnv("broker.users_queue", "BROKER_USERS_QUEUE")
	viper.BindEnv("broker.event_queue", "BROKER_EVENT_QUEUE")

	// Scoring
	viper.BindEnv("scoring.passing_score", "PASSING_SCORE")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Broker.RPCTimeout = cfg.Broker.RPCTimeout * time.Second

	if cfg.Broker.PrefetchCount <= 0 {
		cfg.Broker.PrefetchCount = 16
	}
	if cfg.Broker.RPCTimeout <= 0 {
		cfg.Broker.RPCTimeout = 10 * time.Second
	}
	if cfg.Broker.LessonsQueue == "" {
		cfg.Broker.LessonsQueue = "lessons"
	}
	if cfg.Broker.UsersQueue == "" {
		cfg.Broker.UsersQueue = "users"
	}
	if cfg.Broker.EventQueue == "" {
		cfg.Broker.EventQueue = "analytics"
	}

	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}
