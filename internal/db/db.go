package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fintrack/apiserver/config"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
	sqliteBusyTimeoutMs = 10000
)

// DB is a connection pool that remembers which driver it talks to, so
// repositories can write one query and run it on either backend.
type DB struct {
	*sql.DB
	Driver string
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.Config) (*DB, error) {
	driver := cfg.Database.Driver
	if driver == "" {
		driver = config.DriverPostgres
	}

	var dsn string
	switch driver {
	case config.DriverPostgres:
		dsn = PostgresURL(cfg.Database)
	case config.DriverSQLite:
		dsn = SQLiteDSN(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	conn.SetConnMaxIdleTime(defaultConnMaxIdle)
	conn.SetConnMaxLifetime(defaultConnMaxLife)
	conn.SetMaxIdleConns(defaultMaxIdleConns)
	conn.SetMaxOpenConns(defaultMaxOpenConns)

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &DB{DB: conn, Driver: driver}, nil
}

// IsSQLite reports whether the pool is backed by SQLite.
func (d *DB) IsSQLite() bool {
	return d.Driver == config.DriverSQLite
}

// Rebind rewrites '?' placeholders into the driver's native form.
func (d *DB) Rebind(query string) string {
	if d.Driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// PostgresURL builds a lib/pq connection URL from config.
func PostgresURL(cfg config.DatabaseConfig) string {
	sslmode := "disable"
	if cfg.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:   url.UserPassword(cfg.User, cfg.Password),
		Path:   cfg.DBName,
	}

	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

// SQLiteDSN returns the modernc.org/sqlite DSN for a database file.
// Transactions begin IMMEDIATE so a writer holds the database lock from
// its first statement; the busy timeout makes concurrent writers queue.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeoutMs))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}
