// Package audit keeps a SQLite journal of every executed instruction,
// including the ones that failed, for operators and clients that need the
// history of an order.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"seaescrow/core/types"
	"seaescrow/crypto"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Store persists receipts in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 { return value.UTC().UnixMilli() }

func fromMillis(value int64) time.Time { return time.UnixMilli(value).UTC() }

// Open opens the journal at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("audit: ping sqlite db: %w", err)
	}
	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("audit: run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func migrate(sqlDB *sql.DB) error {
	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		var count int
		if err := sqlDB.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return err
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record stores the receipt and its events in one transaction.
func (s *Store) Record(ctx context.Context, receipt *types.Receipt) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("audit: storage is not configured")
	}
	if receipt == nil || strings.TrimSpace(receipt.ID) == "" {
		return fmt.Errorf("audit: receipt id is required")
	}
	var order sql.NullString
	if receipt.Order != nil {
		order = sql.NullString{String: receipt.Order.String(), Valid: true}
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO receipts
		(id, hash, kind, signer, nonce, order_address, status, error_class, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID, receipt.Hash, receipt.Kind.String(), receipt.Signer.String(), int64(receipt.Nonce),
		order, receipt.Status, receipt.ErrorClass, receipt.Error, toMillis(receipt.CreatedAt))
	if err != nil {
		return fmt.Errorf("audit: insert receipt: %w", err)
	}
	for i, evt := range receipt.Events {
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO receipt_events (receipt_id, position, type, attributes) VALUES (?, ?, ?, ?)`,
			receipt.ID, i, evt.Type, string(attrs)); err != nil {
			return fmt.Errorf("audit: insert event: %w", err)
		}
	}
	return tx.Commit()
}

// ListByOrder returns the newest receipts that touched order, newest first.
func (s *Store) ListByOrder(ctx context.Context, order crypto.Address, limit int) ([]*types.Receipt, error) {
	return s.list(ctx, `order_address = ?`, order.String(), limit)
}

// ListBySigner returns the newest receipts submitted by signer.
func (s *Store) ListBySigner(ctx context.Context, signer crypto.Address, limit int) ([]*types.Receipt, error) {
	return s.list(ctx, `signer = ?`, signer.String(), limit)
}

// Get returns the receipt with id, or sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, id string) (*types.Receipt, error) {
	out, err := s.list(ctx, `id = ?`, id, 1)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return out[0], nil
}

func (s *Store) list(ctx context.Context, where string, arg any, limit int) ([]*types.Receipt, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("audit: storage is not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, hash, kind, signer, nonce, order_address, status, error_class, error, created_at
		FROM receipts WHERE `+where+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, arg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Receipt
	for rows.Next() {
		var (
			r         types.Receipt
			kind      string
			signer    string
			nonce     int64
			order     sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.Hash, &kind, &signer, &nonce, &order, &r.Status, &r.ErrorClass, &r.Error, &createdAt); err != nil {
			return nil, err
		}
		if r.Kind, err = types.ParseInstructionKind(kind); err != nil {
			return nil, err
		}
		if r.Signer, err = crypto.ParseAddress(signer); err != nil {
			return nil, err
		}
		if order.Valid {
			addr, err := crypto.ParseAddress(order.String)
			if err != nil {
				return nil, err
			}
			r.Order = &addr
		}
		r.Nonce = uint64(nonce)
		r.CreatedAt = fromMillis(createdAt)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, r := range out {
		if r.Events, err = s.events(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) events(ctx context.Context, id string) ([]*types.Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT type, attributes FROM receipt_events WHERE receipt_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*types.Event{}
	for rows.Next() {
		var (
			evt   types.Event
			attrs string
		)
		if err := rows.Scan(&evt.Type, &attrs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &evt.Attributes); err != nil {
			return nil, err
		}
		out = append(out, &evt)
	}
	return out, rows.Err()
}
