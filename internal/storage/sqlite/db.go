// Package sqlite backs the wallet's durable collections with an embedded
// database so every read and write works with zero network and survives
// device reboot.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-wallet/internal/domain"
	_ "modernc.org/sqlite"
)

type DB struct {
	db         *sql.DB
	quotaBytes int64
}

// Open opens (creating if needed) the wallet database file. The store is
// single-owner per device, so the pool is pinned to one connection; that
// also makes the per-connection pragmas stick.
func Open(ctx context.Context, path string, quotaBytes int64) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open wallet db")
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "exec %s", pragma)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	return &DB{db: db, quotaBytes: quotaBytes}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// StorageInfo reports usage against the configured quota. Crossing ~90%
// raises the nearLimit flag but never blocks writes.
type StorageInfo struct {
	TicketCount int   `json:"ticket_count"`
	BytesUsed   int64 `json:"bytes_used"`
	BytesQuota  int64 `json:"bytes_quota"`
	NearLimit   bool  `json:"near_limit"`
}

func (d *DB) StorageInfo(ctx context.Context) (StorageInfo, error) {
	info := StorageInfo{BytesQuota: d.quotaBytes}

	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&info.TicketCount)
	if err != nil {
		return info, errors.CombineErrors(domain.ErrStorage, err)
	}

	var pageCount, pageSize int64
	if err := d.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return info, errors.CombineErrors(domain.ErrStorage, err)
	}
	if err := d.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return info, errors.CombineErrors(domain.ErrStorage, err)
	}
	info.BytesUsed = pageCount * pageSize
	info.NearLimit = d.quotaBytes > 0 && info.BytesUsed*10 >= d.quotaBytes*9
	return info, nil
}

// Safe to call multiple times - uses IF NOT EXISTS.
const schema = `
CREATE TABLE IF NOT EXISTS tickets (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    tier_id TEXT NOT NULL,
    qr_code TEXT NOT NULL,
    backup_code TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('valid', 'used', 'cancelled', 'refunded')),
    purchase_date TIMESTAMP NOT NULL,
    used_at TIMESTAMP,
    event_details TEXT NOT NULL,
    tier_details TEXT NOT NULL,
    cultural_selections TEXT,
    last_synced_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tickets_owner_id ON tickets(owner_id);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);

-- Verification attempts keep their enqueue order via seq.
CREATE TABLE IF NOT EXISTS verification_attempts (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    qr_code TEXT,
    backup_code TEXT,
    scanned_by TEXT NOT NULL,
    location TEXT,
    device_info TEXT,
    ts TIMESTAMP NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
    result TEXT,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_attempts_status ON verification_attempts(status);
`
