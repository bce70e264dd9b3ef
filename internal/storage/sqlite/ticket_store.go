package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-wallet/internal/domain"
	"github.com/robertarktes/ticket-wallet/internal/observability"
)

// TicketStore is the durable, keyed wallet cache. Reads never touch the
// network; connectivity state is irrelevant to every method here.
type TicketStore struct {
	db     *DB
	logger observability.Logger
}

func NewTicketStore(db *DB, logger observability.Logger) *TicketStore {
	return &TicketStore{db: db, logger: logger}
}

const ticketColumns = `id, event_id, owner_id, tier_id, qr_code, backup_code, status,
	purchase_date, used_at, event_details, tier_details, cultural_selections, last_synced_at`

// Put upserts a single ticket keyed by id.
func (s *TicketStore) Put(ctx context.Context, t domain.Ticket) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.warnNearQuota(ctx)
	if err := s.upsert(ctx, s.db.db, t); err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	return nil
}

// PutBatch writes all tickets in one transaction. Either the whole batch
// commits or none of it does.
func (s *TicketStore) PutBatch(ctx context.Context, tickets []domain.Ticket) error {
	for i := range tickets {
		if err := tickets[i].Validate(); err != nil {
			return err
		}
	}
	s.warnNearQuota(ctx)

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	defer tx.Rollback()

	for i := range tickets {
		if err := s.upsert(ctx, tx, tickets[i]); err != nil {
			return errors.CombineErrors(domain.ErrStorage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *TicketStore) upsert(ctx context.Context, db execer, t domain.Ticket) error {
	eventDetails, err := json.Marshal(t.EventDetails)
	if err != nil {
		return err
	}
	tierDetails, err := json.Marshal(t.TierDetails)
	if err != nil {
		return err
	}
	var cultural any
	if t.CulturalSelections != nil {
		b, err := json.Marshal(t.CulturalSelections)
		if err != nil {
			return err
		}
		cultural = string(b)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			event_id = excluded.event_id,
			owner_id = excluded.owner_id,
			tier_id = excluded.tier_id,
			qr_code = excluded.qr_code,
			backup_code = excluded.backup_code,
			status = excluded.status,
			purchase_date = excluded.purchase_date,
			used_at = excluded.used_at,
			event_details = excluded.event_details,
			tier_details = excluded.tier_details,
			cultural_selections = excluded.cultural_selections,
			last_synced_at = excluded.last_synced_at
	`, t.ID, t.EventID, t.OwnerID, t.TierID, t.QRCode, t.BackupCode, string(t.Status),
		formatTime(t.PurchaseDate), formatTimePtr(t.UsedAt), string(eventDetails),
		string(tierDetails), cultural, formatTimePtr(t.LastSyncedAt))
	return err
}

func (s *TicketStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	row := s.db.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.CombineErrors(domain.ErrStorage, err)
	}
	return t, nil
}

func (s *TicketStore) GetByOwner(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE owner_id = ? ORDER BY purchase_date`, ownerID)
}

func (s *TicketStore) GetByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE status = ? ORDER BY purchase_date`, string(status))
}

func (s *TicketStore) GetAll(ctx context.Context) ([]domain.Ticket, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY purchase_date`)
}

func (s *TicketStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *TicketStore) Clear(ctx context.Context) error {
	_, err := s.db.db.ExecContext(ctx, `DELETE FROM tickets`)
	if err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	return nil
}

func (s *TicketStore) StorageInfo(ctx context.Context) (StorageInfo, error) {
	return s.db.StorageInfo(ctx)
}

// warnNearQuota surfaces storage pressure before a write without ever
// refusing it: on a low-end device the newest ticket is the one the
// holder is about to need.
func (s *TicketStore) warnNearQuota(ctx context.Context) {
	info, err := s.db.StorageInfo(ctx)
	if err != nil {
		return
	}
	observability.StorageBytesUsed.Set(float64(info.BytesUsed))
	if info.NearLimit {
		observability.StorageNearLimit.Set(1)
		s.logger.WithField("bytes_used", info.BytesUsed).
			WithField("bytes_quota", info.BytesQuota).
			Warn("wallet storage above 90% of quota")
	} else {
		observability.StorageNearLimit.Set(0)
	}
}

func (s *TicketStore) queryTickets(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.CombineErrors(domain.ErrStorage, err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, errors.CombineErrors(domain.ErrStorage, err)
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.CombineErrors(domain.ErrStorage, err)
	}
	return tickets, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		t                              domain.Ticket
		status                         string
		purchaseDate                   string
		usedAt, lastSyncedAt, cultural sql.NullString
		eventDetails, tierDetails      string
	)
	err := row.Scan(&t.ID, &t.EventID, &t.OwnerID, &t.TierID, &t.QRCode, &t.BackupCode,
		&status, &purchaseDate, &usedAt, &eventDetails, &tierDetails, &cultural, &lastSyncedAt)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	if t.PurchaseDate, err = parseTime(purchaseDate); err != nil {
		return nil, err
	}
	if t.UsedAt, err = parseTimePtr(usedAt); err != nil {
		return nil, err
	}
	if t.LastSyncedAt, err = parseTimePtr(lastSyncedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(eventDetails), &t.EventDetails); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tierDetails), &t.TierDetails); err != nil {
		return nil, err
	}
	if cultural.Valid {
		if err := json.Unmarshal([]byte(cultural.String), &t.CulturalSelections); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
