package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-wallet/internal/domain"
)

// AttemptStore is the durable log behind the verification queue. seq
// preserves enqueue order; every status transition is a compare-and-set
// UPDATE so concurrent drain calls cannot double-process an entry.
type AttemptStore struct {
	db *DB
}

func NewAttemptStore(db *DB) *AttemptStore {
	return &AttemptStore{db: db}
}

const attemptColumns = `id, qr_code, backup_code, scanned_by, location, device_info, ts, status, result, error`

func (s *AttemptStore) Append(ctx context.Context, a domain.VerificationAttempt) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO verification_attempts (`+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, nullable(a.QRCode), nullable(a.BackupCode), a.ScannedBy, nullable(a.Location),
		nullable(a.DeviceInfo), formatTime(a.Timestamp), string(a.Status),
		nullableRaw(a.Result), nullable(a.Error))
	if err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, id string) (*domain.VerificationAttempt, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM verification_attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.CombineErrors(domain.ErrStorage, err)
	}
	return a, nil
}

// List returns every attempt in enqueue order.
func (s *AttemptStore) List(ctx context.Context) ([]domain.VerificationAttempt, error) {
	return s.query(ctx, `SELECT `+attemptColumns+` FROM verification_attempts ORDER BY seq`)
}

// NextPending returns the oldest pending attempt, or ErrNotFound.
func (s *AttemptStore) NextPending(ctx context.Context) (*domain.VerificationAttempt, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+` FROM verification_attempts
		WHERE status = 'pending' ORDER BY seq LIMIT 1`)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.CombineErrors(domain.ErrStorage, err)
	}
	return a, nil
}

func (s *AttemptStore) CountByStatus(ctx context.Context, status domain.AttemptStatus) (int, error) {
	var n int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verification_attempts WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, errors.CombineErrors(domain.ErrStorage, err)
	}
	return n, nil
}

// MarkProcessing flips pending -> processing. Returns false when the
// attempt was not pending, which means another drain already took it.
func (s *AttemptStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	result, err := s.db.db.ExecContext(ctx, `
		UPDATE verification_attempts SET status = 'processing'
		WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return false, errors.CombineErrors(domain.ErrStorage, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *AttemptStore) MarkCompleted(ctx context.Context, id string, result json.RawMessage) error {
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE verification_attempts SET status = 'completed', result = ?, error = NULL
		WHERE id = ? AND status = 'processing'`, id, string(result))
	if err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (s *AttemptStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE verification_attempts SET status = 'failed', error = ?
		WHERE id = ? AND status = 'processing'`, id, errMsg)
	if err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ResetProcessing moves crash-orphaned processing entries back to pending.
// A live drain run holds the in-flight guard, so inside one process this
// only ever sees leftovers from a previous run that died mid-call.
func (s *AttemptStore) ResetProcessing(ctx context.Context) (int, error) {
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE verification_attempts SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, errors.CombineErrors(domain.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ResetFailed moves failed entries back to pending and clears their error.
func (s *AttemptStore) ResetFailed(ctx context.Context) (int, error) {
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE verification_attempts SET status = 'pending', error = NULL WHERE status = 'failed'`)
	if err != nil {
		return 0, errors.CombineErrors(domain.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *AttemptStore) DeleteCompleted(ctx context.Context) error {
	_, err := s.db.db.ExecContext(ctx, `DELETE FROM verification_attempts WHERE status = 'completed'`)
	if err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	return nil
}

func (s *AttemptStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.db.ExecContext(ctx, `DELETE FROM verification_attempts`)
	if err != nil {
		return errors.CombineErrors(domain.ErrStorage, err)
	}
	return nil
}

func (s *AttemptStore) query(ctx context.Context, query string, args ...any) ([]domain.VerificationAttempt, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.CombineErrors(domain.ErrStorage, err)
	}
	defer rows.Close()

	var attempts []domain.VerificationAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, errors.CombineErrors(domain.ErrStorage, err)
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.CombineErrors(domain.ErrStorage, err)
	}
	return attempts, nil
}

func scanAttempt(row rowScanner) (*domain.VerificationAttempt, error) {
	var (
		a                                            domain.VerificationAttempt
		qr, backup, location, device, result, errMsg sql.NullString
		status, ts                                   string
	)
	err := row.Scan(&a.ID, &qr, &backup, &a.ScannedBy, &location, &device, &ts, &status, &result, &errMsg)
	if err != nil {
		return nil, err
	}
	a.QRCode = qr.String
	a.BackupCode = backup.String
	a.Location = location.String
	a.DeviceInfo = device.String
	a.Status = domain.AttemptStatus(status)
	a.Error = errMsg.String
	if result.Valid {
		a.Result = json.RawMessage(result.String)
	}
	if a.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	return &a, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}
