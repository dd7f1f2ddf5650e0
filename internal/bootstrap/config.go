package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"snaplive/internal/infra/setup"
)

type (
	// Config is read from the environment, after an optional .env file.
	Config struct {
		AppEnv       string `env:"APP_ENV" envDefault:"development"`
		LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
		ServerPort   string `env:"SERVER_PORT" envDefault:"8080"`
		JWTSecret    string `env:"JWT_SECRET"`
		FrontendURL  string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
		BackendURL   string `env:"BACKEND_URL" envDefault:"http://localhost:8080"`
		PprofEnabled bool   `env:"PPROF_ENABLED" envDefault:"false"`

		DB         DBProperties         `envPrefix:"DB_"`
		Redis      RedisProperties      `envPrefix:"REDIS_"`
		S3         S3Properties         `envPrefix:"S3_"`
		Moderation ModerationProperties `envPrefix:"MODERATION_"`
		Upload     UploadProperties     `envPrefix:"UPLOAD_"`
		Storage    StorageProperties    `envPrefix:"STORAGE_"`
		CORS       CORSProperties       `envPrefix:"CORS_"`
		RateLimit  RateLimitProperties  `envPrefix:"RATE_LIMIT_"`
	}

	DBProperties struct {
		Driver          string        `env:"DRIVER" envDefault:"mysql"`
		User            string        `env:"USER"`
		Password        string        `env:"PASSWORD"`
		Host            string        `env:"HOST" envDefault:"localhost"`
		Port            string        `env:"PORT"`
		Name            string        `env:"NAME" envDefault:"snaplive"`
		SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
		Path            string        `env:"PATH" envDefault:"snaplive.db"`
		MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
		MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
		ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`
	}

	// RedisProperties are optional; without an address rate limiting and the
	// background worker are off.
	RedisProperties struct {
		Addr      string `env:"ADDR"`
		Password  string `env:"PASSWORD"`
		DB        int    `env:"DB" envDefault:"0"`
		KeyPrefix string `env:"KEY_PREFIX" envDefault:"snaplive:"`
	}

	// S3Properties select the cloud asset backend when Endpoint is set.
	S3Properties struct {
		Endpoint  string `env:"ENDPOINT"`
		AccessKey string `env:"ACCESS_KEY"`
		SecretKey string `env:"SECRET_KEY"`
		Bucket    string `env:"BUCKET" envDefault:"snaplive"`
		UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
		PublicURL string `env:"PUBLIC_URL"`
	}

	ModerationProperties struct {
		Enabled   bool          `env:"ENABLED" envDefault:"true"`
		Endpoint  string        `env:"ENDPOINT"`
		Threshold float64       `env:"THRESHOLD" envDefault:"0.6"`
		InputSize uint          `env:"INPUT_SIZE" envDefault:"224"`
		Timeout   time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	UploadProperties struct {
		Dir         string        `env:"DIR" envDefault:"uploads"`
		MaxFiles    int           `env:"MAX_FILES" envDefault:"5"`
		MaxFileSize int64         `env:"MAX_FILE_SIZE" envDefault:"10485760"`
		CPUWorkers  int64         `env:"CPU_WORKERS"`
		GracePeriod time.Duration `env:"GRACE_PERIOD" envDefault:"24h"`
		TimeZone    string        `env:"TIMEZONE" envDefault:"Local"`
	}

	StorageProperties struct {
		Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
	}

	CORSProperties struct {
		AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		TrustedSuffix  string   `env:"TRUSTED_SUFFIX" envDefault:".vercel.app"`
	}

	RateLimitProperties struct {
		Max    int           `env:"MAX" envDefault:"1000"`
		Window time.Duration `env:"WINDOW" envDefault:"15m"`
	}
)

// LoadConfig reads .env (if present) and the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no safe default.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("environment variable JWT_SECRET must be set"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	if c.Moderation.Enabled && c.Moderation.Endpoint == "" {
		errs = append(errs, errors.New("MODERATION_ENDPOINT must be set while MODERATION_ENABLED=true; set MODERATION_ENABLED=false to run without moderation"))
	}
	if c.Moderation.Threshold <= 0 || c.Moderation.Threshold > 1 {
		errs = append(errs, fmt.Errorf("MODERATION_THRESHOLD must be in (0,1], got %v", c.Moderation.Threshold))
	}
	switch c.DB.Driver {
	case setup.DriverMySQL, setup.DriverPostgres, setup.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver))
	}
	if c.Upload.MaxFiles <= 0 || c.Upload.MaxFileSize <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_FILES and UPLOAD_MAX_FILE_SIZE must be positive"))
	}
	if _, err := time.LoadLocation(c.Upload.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("invalid UPLOAD_TIMEZONE %q: %w", c.Upload.TimeZone, err))
	}
	if c.S3.Endpoint != "" && (c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		errs = append(errs, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required with S3_ENDPOINT"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return strings.EqualFold(c.AppEnv, "production") }

// DBParams maps the DB_ section onto the setup package.
func (c *Config) DBParams() setup.DBParams {
	port := c.DB.Port
	if port == "" {
		switch c.DB.Driver {
		case setup.DriverMySQL:
			port = "3306"
		case setup.DriverPostgres:
			port = "5432"
		}
	}
	return setup.DBParams{
		Driver:          c.DB.Driver,
		User:            c.DB.User,
		Password:        c.DB.Password,
		Host:            c.DB.Host,
		Port:            port,
		Name:            c.DB.Name,
		SSLMode:         c.DB.SSLMode,
		Path:            c.DB.Path,
		MaxOpenConns:    c.DB.MaxOpenConns,
		MaxIdleConns:    c.DB.MaxIdleConns,
		ConnMaxLifetime: c.DB.ConnMaxLifetime,
	}
}

// AllowedOrigins is the CORS list plus FRONTEND_URL.
func (c *Config) AllowedOrigins() []string {
	origins := append([]string(nil), c.CORS.AllowedOrigins...)
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	return origins
}
