package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env, optionally pre-loaded from a .env file.
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Storage  StorageConfig
	AI       AIConfig
	Presence PresenceConfig
	CORS     CORSConfig
}

type AppConfig struct {
	Env  string
	Port int

	// Timezone decides where "today" starts for live counters.
	Timezone string
}

type DBConfig struct {
	// Driver is postgres or sqlite.
	Driver string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	SQLitePath string
}

// RedisConfig is optional. An empty host keeps presence and the per-call
// analysis slot in process memory.
type RedisConfig struct {
	Host     string
	Port     int
	PoolSize int
}

type QueueConfig struct {
	// Backend is memory or amqp.
	Backend     string
	Concurrency int

	AMQPHost  string
	AMQPPort  int
	AMQPUser  string
	AMQPPass  string
	QueueName string
}

type StorageConfig struct {
	// Backend is local or minio.
	Backend  string
	LocalDir string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOSecure    bool
}

type AIConfig struct {
	TranscribeURL     string
	LLMURL            string
	APIKey            string
	Model             string
	TranscribeModel   string
	Timeout           time.Duration
	RequestsPerSecond float64
}

type PresenceConfig struct {
	TTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// LoadDotEnv pre-loads a .env file when one exists. Variables already set
// in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = intVar(parseErrs, "APP_PORT", true)
	c.App.Timezone = strings.TrimSpace(os.Getenv("APP_TIMEZONE"))

	c.DB.Driver = strings.TrimSpace(os.Getenv("DB_DRIVER"))
	c.DB.SQLitePath = strings.TrimSpace(os.Getenv("DB_SQLITE_PATH"))
	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = intVar(parseErrs, "DB_PORT", false)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = intVar(parseErrs, "REDIS_PORT", false)
	c.Redis.PoolSize, parseErrs = intVar(parseErrs, "REDIS_POOL_SIZE", false)

	c.Queue.Backend = strings.TrimSpace(os.Getenv("QUEUE_BACKEND"))
	c.Queue.Concurrency, parseErrs = intVar(parseErrs, "QUEUE_CONCURRENCY", false)
	c.Queue.AMQPHost = strings.TrimSpace(os.Getenv("AMQP_HOST"))
	c.Queue.AMQPPort, parseErrs = intVar(parseErrs, "AMQP_PORT", false)
	c.Queue.AMQPUser = strings.TrimSpace(os.Getenv("AMQP_USER"))
	c.Queue.AMQPPass = os.Getenv("AMQP_PASSWORD")
	c.Queue.QueueName = strings.TrimSpace(os.Getenv("AMQP_QUEUE"))

	c.Storage.Backend = strings.TrimSpace(os.Getenv("STORAGE_BACKEND"))
	c.Storage.LocalDir = strings.TrimSpace(os.Getenv("STORAGE_LOCAL_DIR"))
	c.Storage.MinIOEndpoint = strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	c.Storage.MinIOAccessKey = strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	c.Storage.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	c.Storage.MinIOBucket = strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	c.Storage.MinIOSecure = strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_SECURE")), "true")

	c.AI.TranscribeURL = strings.TrimSpace(os.Getenv("AI_TRANSCRIBE_URL"))
	c.AI.LLMURL = strings.TrimSpace(os.Getenv("AI_LLM_URL"))
	c.AI.APIKey = os.Getenv("AI_API_KEY")
	c.AI.Model = strings.TrimSpace(os.Getenv("AI_MODEL"))
	c.AI.TranscribeModel = strings.TrimSpace(os.Getenv("AI_TRANSCRIBE_MODEL"))
	// Duration env vars are optional; defaults applied in Validate().
	c.AI.Timeout = mustDuration("AI_TIMEOUT")
	if v := strings.TrimSpace(os.Getenv("AI_REQUESTS_PER_SECOND")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("AI_REQUESTS_PER_SECOND must be a number, got %q", v))
		}
		c.AI.RequestsPerSecond = f
	}

	c.Presence.TTL = mustDuration("PRESENCE_TTL")

	c.CORS.AllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every section and fills defaults in place. All problems
// are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "Asia/Seoul"
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE is not a known zone: %q", c.App.Timezone))
	}

	errs = append(errs, c.validateDB()...)

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("REDIS_POOL_SIZE must not be negative, got %d", c.Redis.PoolSize))
	}

	errs = append(errs, c.validateQueue()...)
	errs = append(errs, c.validateStorage()...)

	if c.AI.TranscribeURL == "" {
		errs = append(errs, errors.New("AI_TRANSCRIBE_URL is required"))
	}
	if c.AI.LLMURL == "" {
		errs = append(errs, errors.New("AI_LLM_URL is required"))
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 120 * time.Second
	}
	if c.AI.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("AI_REQUESTS_PER_SECOND must not be negative"))
	}

	if c.Presence.TTL <= 0 {
		c.Presence.TTL = 2 * time.Hour
	}

	if c.IsProduction() && len(c.CORS.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS is required in production"))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Driver == "" {
		c.DB.Driver = "postgres"
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_DRIVER sqlite is not allowed in production"))
		}
		if c.DB.SQLitePath == "" {
			c.DB.SQLitePath = "callcenter.db"
		}
		return errs
	case "postgres":
	default:
		return append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DB.Driver))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c *Config) validateQueue() []error {
	var errs []error
	if c.Queue.Backend == "" {
		c.Queue.Backend = "memory"
	}
	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = 1
	}
	if c.Queue.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("QUEUE_CONCURRENCY must be positive, got %d", c.Queue.Concurrency))
	}
	switch c.Queue.Backend {
	case "memory":
	case "amqp":
		if c.Queue.AMQPHost == "" {
			errs = append(errs, errors.New("AMQP_HOST is required for the amqp queue"))
		}
		if c.Queue.AMQPPort == 0 {
			c.Queue.AMQPPort = 5672
		}
		if c.Queue.AMQPPort < 0 || c.Queue.AMQPPort > 65535 {
			errs = append(errs, fmt.Errorf("AMQP_PORT must be a valid port, got %d", c.Queue.AMQPPort))
		}
		if c.Queue.QueueName == "" {
			c.Queue.QueueName = "analysis_jobs"
		}
	default:
		errs = append(errs, fmt.Errorf("QUEUE_BACKEND must be memory or amqp, got %q", c.Queue.Backend))
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			c.Storage.LocalDir = "recordings"
		}
	case "minio":
		if c.Storage.MinIOEndpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required for minio storage"))
		}
		if c.Storage.MinIOBucket == "" {
			errs = append(errs, errors.New("MINIO_BUCKET is required for minio storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be local or minio, got %q", c.Storage.Backend))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// RedisEnabled reports whether a Redis server is configured.
func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Location returns the configured timezone, UTC if it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// intVar parses an integer env var. Optional vars yield 0 when unset.
func intVar(errs []error, key string, required bool) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		if required {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
