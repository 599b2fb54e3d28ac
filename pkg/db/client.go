package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/buildmart/storefront/pkg/config"
	"github.com/buildmart/storefront/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var errNoConnection = errors.New("database connection not initialized")

// Client owns the gorm handle backing the sql state backend.
type Client struct {
	conn   *gorm.DB
	driver string
}

// New opens the configured database, applies pool limits and verifies the
// connection before returning.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database DSN is required")
	}
	driver := driverName(cfg.Driver)

	dialector, err := dialectorFor(driver, dsn)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("%s sql handle: %w", driver, err)
	}
	limitPool(sqlDB, cfg, driver == config.DBDriverSQLite && isMemoryDSN(dsn))

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"db_driver":  driver,
			"slow_query": cfg.SlowQuery.String(),
		}), "database connection established")
	}
	return &Client{conn: conn, driver: driver}, nil
}

func driverName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" || name == "postgresql" {
		return config.DBDriverPostgres
	}
	return name
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case config.DBDriverSQLite:
		return sqlite.Open(dsn), nil
	case config.DBDriverPostgres:
		return postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// isMemoryDSN reports whether every pooled connection would open its own
// private sqlite database.
func isMemoryDSN(dsn string) bool {
	if strings.Contains(dsn, "cache=shared") {
		return false
	}
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func limitPool(sqlDB *sql.DB, cfg config.DBConfig, pinned bool) {
	if pinned {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.conn
}

// Driver returns the normalized driver name.
func (c *Client) Driver() string {
	return c.driver
}

// Ping backs the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errNoConnection
	}
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
