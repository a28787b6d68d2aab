package store

import (
	"context"
	"database/sql"
	"embed"
	errs "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aabbtree77/headless/internal/config"
)

var (
	ErrNotFound = errs.New("store: not found")
	ErrNoChange = errs.New("store: no change")
)

//go:embed migrations
var migrations embed.FS

// DB wraps gorm.DB for repositories and exposes Close.
type DB struct {
	gorm   *gorm.DB
	sql    *sql.DB
	driver string
}

func (d *DB) Close() error   { return d.sql.Close() }
func (d *DB) Gorm() *gorm.DB { return d.gorm }
func (d *DB) Driver() string { return d.driver }

// Open connects to the database named by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("missing DSN")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	sdb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	if cfg.Driver == config.DriverSQLite {
		// One writer keeps sqlite from returning SQLITE_BUSY and keeps
		// shared in-memory databases alive across calls.
		sdb.SetMaxOpenConns(1)
	} else {
		sdb.SetConnMaxLifetime(30 * time.Minute)
		sdb.SetMaxOpenConns(10)
		sdb.SetMaxIdleConns(5)
	}

	if err := sdb.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}
	return &DB{gorm: gdb, sql: sdb, driver: cfg.Driver}, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// Migrate applies every pending schema migration. It returns ErrNoChange
// when the schema is already current.
func (d *DB) Migrate(ctx context.Context) error {
	mig, err := d.migrator()
	if err != nil {
		return err
	}
	// Closing mig would close the shared *sql.DB, so it is left open.
	if err := mig.Up(); err != nil {
		if errs.Is(err, migrate.ErrNoChange) {
			return ErrNoChange
		}
		return errors.Wrap(err, "migrate up")
	}
	return nil
}

// MigrateDown rolls the last migration back.
func (d *DB) MigrateDown(ctx context.Context) error {
	mig, err := d.migrator()
	if err != nil {
		return err
	}
	if err := mig.Steps(-1); err != nil {
		if errs.Is(err, migrate.ErrNoChange) {
			return ErrNoChange
		}
		return errors.Wrap(err, "migrate down")
	}
	return nil
}

func (d *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations/"+d.driver)
	if err != nil {
		return nil, errors.Wrap(err, "migration source")
	}

	var drv database.Driver
	switch d.driver {
	case config.DriverSQLite:
		drv, err = migratesqlite.WithInstance(d.sql, &migratesqlite.Config{})
	case config.DriverPostgres:
		drv, err = migratepg.WithInstance(d.sql, &migratepg.Config{})
	default:
		err = fmt.Errorf("unsupported driver %q", d.driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "migration driver")
	}

	mig, err := migrate.NewWithInstance("iofs", src, d.driver, drv)
	if err != nil {
		return nil, errors.Wrap(err, "migrate instance")
	}
	return mig, nil
}

// notFound maps gorm's missing-row error onto ErrNotFound.
func notFound(err error, what string) error {
	if errs.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, what)
}
