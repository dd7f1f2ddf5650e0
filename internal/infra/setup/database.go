package setup

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported values of DBParams.Driver.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DBParams describes how to reach the database.
type DBParams struct {
	Driver   string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
	Path     string // sqlite file, ":memory:" for an ephemeral database

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the driver specific connection string.
func (p DBParams) DSN() (string, error) {
	switch strings.ToLower(p.Driver) {
	case DriverMySQL, "":
		if p.User == "" {
			return "", fmt.Errorf("DB_USER must be set for driver mysql")
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			p.User, p.Password, p.Host, p.Port, p.Name), nil
	case DriverPostgres:
		if p.User == "" {
			return "", fmt.Errorf("DB_USER must be set for driver postgres")
		}
		sslMode := p.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			p.Host, p.User, p.Password, p.Name, p.Port, sslMode), nil
	case DriverSQLite:
		if p.Path == "" {
			return "", fmt.Errorf("DB_PATH must be set for driver sqlite")
		}
		return p.Path, nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", p.Driver)
	}
}

// InitDB opens the gorm connection for the configured driver and sizes its pool.
func InitDB(p DBParams) (*gorm.DB, error) {
	dsn, err := p.DSN()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch strings.ToLower(p.Driver) {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		dialector = mysql.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", p.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if strings.ToLower(p.Driver) == DriverSQLite {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY and keeps
		// ":memory:" databases shared.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if p.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(p.MaxOpenConns)
		}
		if p.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(p.MaxIdleConns)
		}
	}
	if p.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
	logrus.WithField("driver", p.Driver).Info("Database connected")
	return db, nil
}
