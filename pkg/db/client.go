package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

const bootPingTimeout = 5 * time.Second

// Client owns the pooled gorm connection shared by every repository.
type Client struct {
	conn *gorm.DB
}

// New opens cfg.Driver (postgres or sqlite), applies the pool limits and
// pings once before returning.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
		NowFunc:                UTCNow,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	client := &Client{conn: conn}
	pingCtx, cancel := context.WithTimeout(ctx, bootPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	logg.Info(logg.WithField(ctx, "driver", cfg.Driver), "database connection established")
	return client, nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	case "", "postgres":
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
}

// UTCNow stamps autoCreateTime/autoUpdateTime columns. Timestamps are kept
// in UTC so SQLite text comparisons order correctly.
func UTCNow() time.Time {
	return time.Now().UTC()
}

// NewFromGorm wraps an existing connection. Tests use it with SQLite.
func NewFromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

// AutoMigrate creates or updates every model table. Only used for SQLite in
// dev; Postgres schemas come from goose migrations.
func (c *Client) AutoMigrate(ctx context.Context) error {
	return c.conn.WithContext(ctx).AutoMigrate(models.All()...)
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping backs the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in one transaction. Any error or panic from fn rolls back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

// newQueryLogger reports slow statements and driver errors through the
// service logger. Record-not-found is routine and stays silent.
func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return gormlogger.New(queryLogWriter{logg: logg}, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}

type queryLogWriter struct {
	logg *logger.Logger
}

func (w queryLogWriter) Printf(format string, args ...any) {
	w.logg.Warn(context.Background(), "gorm: "+fmt.Sprintf(format, args...))
}
