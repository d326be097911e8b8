package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Database holds the connection parameters for the MySQL store.
type Database struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	User     string `validate:"required"`
	Password string
	Name     string `validate:"required"`
}

// Config is the explicit run configuration passed to every entry point.
// There is no package-global connection: each run constructs its own
// *gorm.DB from this struct and closes it when the run ends.
type Config struct {
	DB           Database `validate:"required"`
	SourceSystem string   `validate:"required"`
	MappingPath  string   `validate:"required"`
}

// Load reads configuration from the environment (.env is honored when
// present) and validates it. Missing values fall back to local-dev defaults.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		DB: Database{
			Host:     envOr("DB_HOST", "localhost"),
			Port:     envOr("DB_PORT", "3306"),
			User:     envOr("DB_USER", "root"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     envOr("DB_NAME", "sales_engine"),
		},
		SourceSystem: envOr("SOURCE_SYSTEM", "karamad"),
		MappingPath:  envOr("MAPPING_PATH", "config/mapping_karamad.yml"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Connect opens a run-scoped connection. Retries a few times with backoff so
// a briefly unavailable database does not kill a scheduled run, then gives up:
// an unreachable store is fatal, the run is safely re-runnable afterward.
func (c *Config) Connect() (*gorm.DB, error) {
	network := "tcp"
	address := fmt.Sprintf("%s:%s", c.DB.Host, c.DB.Port)

	// Cloud SQL Auth Proxy exposes a unix socket under /cloudsql/.
	if strings.HasPrefix(c.DB.Host, "/cloudsql/") {
		network = "unix"
		address = c.DB.Host
	}

	dsn := fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
		c.DB.User,
		c.DB.Password,
		network,
		address,
		c.DB.Name,
	)

	maxAttempts := intFromEnv("DB_CONNECT_ATTEMPTS", 3)
	var db *gorm.DB
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, err = gorm.Open(mysql.Open(dsn), gormConfig())
		if err == nil {
			break
		}
		if attempt == maxAttempts {
			return nil, fmt.Errorf("connect database after %d attempts: %w", maxAttempts, err)
		}
		sleep := time.Second * time.Duration(1<<attempt)
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}

	if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
		sqlDB.SetMaxOpenConns(intFromEnv("DB_MAX_OPEN_CONNS", 10))
		sqlDB.SetMaxIdleConns(intFromEnv("DB_MAX_IDLE_CONNS", 5))
		sqlDB.SetConnMaxLifetime(time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second)
	}

	if strings.EqualFold(strings.TrimSpace(os.Getenv("OTEL_GORM_ENABLED")), "true") {
		if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
			log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
		}
	}

	return db, nil
}

// Close releases the run-scoped connection.
func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil && sqlDB != nil {
		sqlDB.Close()
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initGormLog(),
		NamingStrategy: &schema.NamingStrategy{SingularTable: false},
	}
}

func initGormLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
