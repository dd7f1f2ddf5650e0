package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndPrefixes(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_USER", "snap")
	t.Setenv("MODERATION_ENDPOINT", "http://classifier:8501")
	t.Setenv("MODERATION_THRESHOLD", "0.75")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,https://snaplive.app")
	t.Setenv("FRONTEND_URL", "https://snaplive.app/")
	t.Setenv("UPLOAD_GRACE_PERIOD", "48h")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.True(t, cfg.Moderation.Enabled)
	assert.Equal(t, 0.75, cfg.Moderation.Threshold)
	assert.Equal(t, uint(224), cfg.Moderation.InputSize)
	assert.Equal(t, 10*time.Second, cfg.Moderation.Timeout)
	assert.Equal(t, 5, cfg.Upload.MaxFiles)
	assert.EqualValues(t, 10<<20, cfg.Upload.MaxFileSize)
	assert.Equal(t, 48*time.Hour, cfg.Upload.GracePeriod)
	assert.Equal(t, 15*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, ".vercel.app", cfg.CORS.TrustedSuffix)
	assert.Equal(t, []string{"http://localhost:3000", "https://snaplive.app", "https://snaplive.app/"}, cfg.AllowedOrigins())

	p := cfg.DBParams()
	assert.Equal(t, "5432", p.Port)
	assert.Equal(t, "snap", p.User)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:  "s",
			LogLevel:   "info",
			DB:         DBProperties{Driver: "sqlite"},
			Moderation: ModerationProperties{Enabled: true, Endpoint: "http://classifier:8501", Threshold: 0.6},
			Upload:     UploadProperties{MaxFiles: 5, MaxFileSize: 1, TimeZone: "UTC"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"missing secret":              func(c *Config) { c.JWTSecret = "" },
		"bad level":                   func(c *Config) { c.LogLevel = "loud" },
		"zero threshold":              func(c *Config) { c.Moderation.Threshold = 0 },
		"threshold above":             func(c *Config) { c.Moderation.Threshold = 1.5 },
		"bad driver":                  func(c *Config) { c.DB.Driver = "oracle" },
		"no files":                    func(c *Config) { c.Upload.MaxFiles = 0 },
		"bad timezone":                func(c *Config) { c.Upload.TimeZone = "Mars/Olympus" },
		"s3 without keys":             func(c *Config) { c.S3.Endpoint = "minio:9000" },
		"moderation without endpoint": func(c *Config) { c.Moderation.Endpoint = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadConfig_ModerationMustBeSwitchedOffExplicitly(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MODERATION_ENDPOINT")

	t.Setenv("MODERATION_ENABLED", "false")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Moderation.Enabled)
}

func TestConfig_MySQLDefaultPort(t *testing.T) {
	c := &Config{DB: DBProperties{Driver: "mysql", Port: ""}}
	assert.Equal(t, "3306", c.DBParams().Port)
	c.DB.Port = "3307"
	assert.Equal(t, "3307", c.DBParams().Port)
}
