// Package cache stores compiled code objects in a SQL database, keyed by a
// digest of the source they were compiled from.
package cache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	_ "github.com/lib/pq"
	"github.com/tliron/commonlog"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"

	"pyvm/internal/ir"
)

var log = commonlog.GetLogger("pyvm.cache")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Cache is a compiled-code store. Entries are never invalidated: a changed
// source or a new code format version produces a different key.
type Cache struct {
	db     *sql.DB
	driver string
}

var schemas = map[string]string{
	DriverSQLite: `CREATE TABLE IF NOT EXISTS code_cache (
		key TEXT PRIMARY KEY,
		code BLOB NOT NULL
	)`,
	DriverPostgres: `CREATE TABLE IF NOT EXISTS code_cache (
		key TEXT PRIMARY KEY,
		code BYTEA NOT NULL
	)`,
}

// Open connects to the database and creates the cache table if needed.
func Open(ctx context.Context, driver, dsn string) (*Cache, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported cache driver %q (want %q or %q)", driver, DriverSQLite, DriverPostgres)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	log.Debugf("opened %s cache", driver)
	return &Cache{db: db, driver: driver}, nil
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Key returns the cache key for a source text.
func Key(source []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write(source)
	h.Write([]byte("\x00pyvc" + strconv.Itoa(ir.FormatVersion)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the code object stored under key. A miss is not an error.
func (c *Cache) Get(ctx context.Context, key string) (*ir.CodeObject, bool, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx, c.rebind("SELECT code FROM code_cache WHERE key = ?"), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debugf("miss %s", short(key))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying cache: %w", err)
	}

	code, err := ir.Unmarshal(data)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cached code %s: %w", short(key), err)
	}
	log.Debugf("hit %s (%s)", short(key), humanize.Bytes(uint64(len(data))))
	return code, true, nil
}

// Put stores code under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, code *ir.CodeObject) error {
	data, err := ir.Marshal(code)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		c.rebind("INSERT INTO code_cache (key, code) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET code = excluded.code"),
		key, data)
	if err != nil {
		return fmt.Errorf("storing cached code: %w", err)
	}
	log.Debugf("stored %s (%s)", short(key), humanize.Bytes(uint64(len(data))))
	return nil
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// rebind rewrites ? placeholders as $n for postgres.
func (c *Cache) rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, '$')
			out = strconv.AppendInt(out, int64(n), 10)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
