package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/carelink-solutions/carelink-auth/pkg/config"
	"github.com/carelink-solutions/carelink-auth/pkg/database"
)

const (
	defaultAccessSecret  = "change-this-access-secret"
	defaultRefreshSecret = "change-this-refresh-secret"
	minSecretLength      = 32
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"PORT" envDefault:"5000"`

	// Credential store
	StoreDriver  string        `env:"STORE_DRIVER" envDefault:"mongo"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// MongoDB
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"carelink"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"carelink"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"carelink_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"carelink"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns      int32 `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns      int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryMillis int   `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-access-secret"`
	RefreshSecret    string        `env:"REF_JWT_SECRET" envDefault:"change-this-refresh-secret"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"168h"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"720h"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`

	// AdminUserIDs lists server-assigned user ids, which an account holder
	// cannot choose or change.
	AdminUserIDs []string `env:"ADMIN_USER_IDS" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173,https://carelink-solutions.vercel.app" envSeparator:","`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
}

// Load reads configuration from the environment, after loading a .env file
// if one is present.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, pkgconfig.DefaultEnvFile); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode, which
// relaxes the cookie Secure flag and the secret checks.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StoreDriver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want mongo, postgres or memory", c.StoreDriver)
	}

	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive, got %s", c.StoreTimeout)
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.JWTSecret == c.RefreshSecret {
		return fmt.Errorf("JWT_SECRET and REF_JWT_SECRET must differ")
	}

	if !c.IsDevelopment() {
		if err := checkSecret("JWT_SECRET", c.JWTSecret, defaultAccessSecret); err != nil {
			return err
		}
		if err := checkSecret("REF_JWT_SECRET", c.RefreshSecret, defaultRefreshSecret); err != nil {
			return err
		}
	}

	return nil
}

func checkSecret(name, value, placeholder string) error {
	if value == placeholder {
		return fmt.Errorf("%s must be explicitly set via environment variable outside development", name)
	}
	if len(value) < minSecretLength {
		return fmt.Errorf("%s must be at least %d characters long, got %d", name, minSecretLength, len(value))
	}
	return nil
}

// AdminIDSet returns the configured admin user ids, trimmed and lower-cased.
func (c *Config) AdminIDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.AdminUserIDs))
	for _, id := range c.AdminUserIDs {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Postgres returns the pool configuration for the postgres driver.
func (c *Config) Postgres() database.PostgresConfig {
	pc := database.DefaultPostgresConfig()
	pc.Host = c.PostgresHost
	pc.Port = c.PostgresPort
	pc.User = c.PostgresUser
	pc.Password = c.PostgresPass
	pc.DBName = c.PostgresDB
	pc.SSLMode = c.PostgresSSL
	pc.MaxConns = c.DBMaxConns
	pc.MinConns = c.DBMinConns
	return pc
}

// Mongo returns the client configuration for the mongo driver.
func (c *Config) Mongo(appName string) database.MongoConfig {
	mc := database.DefaultMongoConfig()
	mc.URI = c.MongoURI
	mc.Database = c.MongoDatabase
	mc.AppName = appName
	return mc
}

// SlowQueryThreshold is the duration above which store calls are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMillis) * time.Millisecond
}
