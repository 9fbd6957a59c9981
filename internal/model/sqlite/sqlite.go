// Package sqlite is the broker's db.engine=sqlite backend: a hand-written
// database/sql implementation of every internal/model Store interface, with
// WAL-mode PRAGMA bootstrapping on open. Unlike a code-generated ORM layer,
// it owns its schema as plain SQL migrations and hand-rolled scans.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/logger"
)

// DB wraps the single shared *sql.DB connection backing every store. SQLite
// accepts only one writer at a time, so the pool is capped at one
// connection.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path, applies
// WAL/PRAGMA tuning, and runs schema migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_time_format=sqlite", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewDownstreamTransient("open sqlite database", err).WithContext("path", path)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.NewDownstreamTransient("set sqlite pragma", err).WithContext("pragma", pragma)
		}
	}

	d := &DB{sql: db}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("sqlite database ready", zap.String("path", path))
	return d, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS unit (
			unit_id     TEXT PRIMARY KEY,
			code        TEXT NOT NULL UNIQUE,
			owner_id    TEXT NOT NULL,
			member_ids  TEXT NOT NULL DEFAULT '[]',
			name        TEXT NOT NULL DEFAULT '',
			info        TEXT NOT NULL DEFAULT '{}',
			created_at  INTEGER NOT NULL,
			modified_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS application (
			application_id TEXT PRIMARY KEY,
			unit_id         TEXT NOT NULL,
			code            TEXT NOT NULL,
			host_uri        TEXT NOT NULL,
			name            TEXT NOT NULL DEFAULT '',
			info            TEXT NOT NULL DEFAULT '{}',
			created_at      INTEGER NOT NULL,
			modified_at     INTEGER NOT NULL,
			UNIQUE(unit_id, code)
		)`,
		`CREATE TABLE IF NOT EXISTS network (
			network_id  TEXT PRIMARY KEY,
			unit_id     TEXT NOT NULL DEFAULT '',
			code        TEXT NOT NULL,
			host_uri    TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			info        TEXT NOT NULL DEFAULT '{}',
			created_at  INTEGER NOT NULL,
			modified_at INTEGER NOT NULL,
			UNIQUE(unit_id, code)
		)`,
		`CREATE TABLE IF NOT EXISTS device (
			device_id    TEXT PRIMARY KEY,
			unit_id      TEXT NOT NULL,
			network_id   TEXT NOT NULL,
			network_addr TEXT NOT NULL,
			profile      TEXT NOT NULL DEFAULT '',
			name         TEXT NOT NULL DEFAULT '',
			info         TEXT NOT NULL DEFAULT '{}',
			created_at   INTEGER NOT NULL,
			modified_at  INTEGER NOT NULL,
			UNIQUE(network_id, network_addr)
		)`,
		`CREATE TABLE IF NOT EXISTS device_route (
			route_id         TEXT PRIMARY KEY,
			unit_id          TEXT NOT NULL,
			application_id   TEXT NOT NULL,
			device_id        TEXT NOT NULL,
			network_id       TEXT NOT NULL,
			network_code     TEXT NOT NULL,
			network_addr     TEXT NOT NULL,
			profile          TEXT NOT NULL DEFAULT '',
			application_code TEXT NOT NULL,
			created_at       INTEGER NOT NULL,
			UNIQUE(application_id, device_id)
		)`,
		`CREATE TABLE IF NOT EXISTS network_route (
			route_id         TEXT PRIMARY KEY,
			unit_id          TEXT NOT NULL,
			application_id   TEXT NOT NULL,
			network_id       TEXT NOT NULL,
			network_code     TEXT NOT NULL,
			application_code TEXT NOT NULL,
			created_at       INTEGER NOT NULL,
			UNIQUE(application_id, network_id)
		)`,
		`CREATE TABLE IF NOT EXISTS dldata_buffer (
			data_id        TEXT PRIMARY KEY,
			unit_id        TEXT NOT NULL,
			application_id TEXT NOT NULL,
			network_id     TEXT NOT NULL,
			device_id      TEXT NOT NULL,
			created_at     INTEGER NOT NULL,
			expires_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_device_route_device ON device_route(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_network_route_network ON network_route(network_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dldata_expires ON dldata_buffer(expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return errors.NewDownstreamPermanent("run sqlite migration", err).WithContext("stmt", stmt)
		}
	}
	return nil
}

// escapeLike escapes SQL LIKE metacharacters (%, _, the escape char itself)
// so a *_contains filter searches for the substring literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func likePattern(substr string) string {
	return "%" + escapeLike(substr) + "%"
}
