// Package client opens database handles for the supported dialects and
// hands out batch dispatchers bound to them.
package client

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/singlefetch/singlefetch/batch"
	"github.com/singlefetch/singlefetch/query/sqlgen"
)

// Client owns a database handle for one dialect.
type Client struct {
	db      *sql.DB
	dialect sqlgen.Dialect
}

// Open opens a database for a dialect. The handle is lazy; call Connect to
// verify it.
func Open(dialect sqlgen.Dialect, dsn string) (*Client, error) {
	driverName := driverFor(dialect)
	if driverName == "" {
		return nil, fmt.Errorf("%w: %q", sqlgen.ErrUnsupportedDialect, dialect)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	return &Client{db: db, dialect: dialect}, nil
}

// FromDB wraps an existing database handle.
func FromDB(dialect sqlgen.Dialect, db *sql.DB) *Client {
	return &Client{db: db, dialect: dialect}
}

// driverFor maps a dialect to its registered database/sql driver.
func driverFor(d sqlgen.Dialect) string {
	switch d {
	case sqlgen.Postgres:
		return "postgres"
	case sqlgen.MySQL:
		return "mysql"
	case sqlgen.SQLite:
		return "sqlite3"
	default:
		return ""
	}
}

// Connect verifies the database is reachable.
func (c *Client) Connect(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database handle.
func (c *Client) Close() error {
	return c.db.Close()
}

// DB returns the underlying database handle.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Dialect returns the dialect the client was opened for.
func (c *Client) Dialect() sqlgen.Dialect {
	return c.dialect
}

// Fetch returns a batch dispatcher bound to this client's handle.
func (c *Client) Fetch() *batch.Fetch {
	return batch.NewFetch(c.db, batch.WithDialect(c.dialect))
}
