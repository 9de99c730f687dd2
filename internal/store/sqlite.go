package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/ashureev/nero-labs/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries    = 3
	writeRetryDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to keep SQLITE_BUSY rare
	now     func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS wallet_state (
		storage_key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS device_sessions (
		device_id TEXT PRIMARY KEY,
		user_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_device_sessions_updated ON device_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetState returns the snapshot stored under key.
func (s *SQLiteStore) GetState(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM wallet_state WHERE storage_key = ?`, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan wallet state: %w", err)
	}
	return []byte(payload), nil
}

// PutState replaces the snapshot stored under key.
func (s *SQLiteStore) PutState(ctx context.Context, key string, payload []byte) error {
	query := `
	INSERT INTO wallet_state (storage_key, payload, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(storage_key) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at`

	err := s.write(ctx, "put_state", func() error {
		_, err := s.db.ExecContext(ctx, query, key, string(payload), s.now().Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert wallet state: %w", err)
	}
	return nil
}

// GetDeviceSession returns the identity remembered for deviceID.
func (s *SQLiteStore) GetDeviceSession(ctx context.Context, deviceID string) (*domain.User, error) {
	var userJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_json FROM device_sessions WHERE device_id = ?`, deviceID,
	).Scan(&userJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan device session: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, fmt.Errorf("decode device session: %w", err)
	}
	return &user, nil
}

// UpsertDeviceSession remembers user as the identity of deviceID.
func (s *SQLiteStore) UpsertDeviceSession(ctx context.Context, deviceID string, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode device session: %w", err)
	}

	query := `
	INSERT INTO device_sessions (device_id, user_json, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		user_json = excluded.user_json,
		updated_at = excluded.updated_at`

	now := s.now().Unix()
	err = s.write(ctx, "upsert_device_session", func() error {
		_, err := s.db.ExecContext(ctx, query, deviceID, string(data), now, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert device session: %w", err)
	}
	return nil
}

// DeleteDeviceSession forgets the identity of deviceID.
func (s *SQLiteStore) DeleteDeviceSession(ctx context.Context, deviceID string) error {
	err := s.write(ctx, "delete_device_session", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM device_sessions WHERE device_id = ?`, deviceID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete device session %s: %w", deviceID, err)
	}
	return nil
}

// CleanupStaleDeviceSessions removes device sessions idle for longer than ttl.
func (s *SQLiteStore) CleanupStaleDeviceSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := s.now().Add(-ttl).Unix()
	var removed int64
	err := s.write(ctx, "cleanup_device_sessions", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM device_sessions WHERE updated_at < ?`, threshold)
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup device sessions: %w", err)
	}
	return removed, nil
}

func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	return shared.RetryOnConflict(ctx, op, writeRetries, writeRetryDelay, func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return fn()
	})
}
