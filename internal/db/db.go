package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/eventos/apiserver/config"
	"github.com/eventos/apiserver/types"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultDBDriver     = "postgres"
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
)

// Open connects to the configured database and returns a gorm handle.
// Postgres schemas are managed by the migrate command; sqlite databases
// are auto-migrated from the models.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		return OpenSQLite(cfg.Database.SQLitePath, log)
	case config.DriverPostgres, "":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// PostgresURL builds the lib/pq connection URL for the configured database.
func PostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port),
		User:   url.UserPassword(cfg.Database.User, cfg.Database.Password),
		Path:   cfg.Database.DBName,
	}

	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()

	return u.String()
}

func openPostgres(ctx context.Context, cfg config.Config, log zerolog.Logger) (*gorm.DB, error) {
	sqlDB, err := sql.Open(defaultDBDriver, PostgresURL(cfg))
	if err != nil {
		return nil, err
	}

	sqlDB.SetConnMaxIdleTime(defaultConnMaxIdle)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLife)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig(log))
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return gdb, nil
}

// OpenSQLite opens a sqlite database at dsn and migrates the models.
// Pass a "file:<name>?mode=memory&cache=shared" dsn for an in-memory database.
func OpenSQLite(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "eventos.db"
	}

	gdb, err := gorm.Open(sqlite.Open(withForeignKeys(dsn)), gormConfig(log))
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY inside transactions.
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(gdb); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return gdb, nil
}

// AutoMigrate creates or updates the tables for all models.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&types.User{}, &types.Attendee{}, &types.Organizer{})
}

// Ping checks that the database is reachable.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// Close releases the underlying connection pool.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormConfig(log zerolog.Logger) *gorm.Config {
	gormLogger := logger.Discard
	if log.GetLevel() <= zerolog.DebugLevel {
		gormLogger = logger.New(&log, logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Info,
		})
	}
	return &gorm.Config{Logger: gormLogger}
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}
