package domain

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptProcessing AttemptStatus = "processing"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptFailed     AttemptStatus = "failed"
)

// VerificationAttempt is one scan submitted at the door. It is persisted
// at enqueue time and replayed against the server when connectivity allows.
type VerificationAttempt struct {
	ID         string          `json:"id"`
	QRCode     string          `json:"qr_code,omitempty"`
	BackupCode string          `json:"backup_code,omitempty"`
	ScannedBy  string          `json:"scanned_by"`
	Location   string          `json:"location,omitempty"`
	DeviceInfo string          `json:"device_info,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Status     AttemptStatus   `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// NewAttempt assigns the identity and initial lifecycle state for a scan.
func NewAttempt(qrCode, backupCode, scannedBy, location, deviceInfo string) VerificationAttempt {
	return VerificationAttempt{
		ID:         uuid.New().String(),
		QRCode:     qrCode,
		BackupCode: backupCode,
		ScannedBy:  scannedBy,
		Location:   location,
		DeviceInfo: deviceInfo,
		Timestamp:  time.Now().UTC(),
		Status:     AttemptPending,
	}
}

// Validate enforces the exactly-one-code contract.
func (a *VerificationAttempt) Validate() error {
	if a.QRCode == "" && a.BackupCode == "" {
		return errors.Wrap(ErrInvalidInput, "attempt has neither qr code nor backup code")
	}
	if a.QRCode != "" && a.BackupCode != "" {
		return errors.Wrap(ErrInvalidInput, "attempt has both qr code and backup code")
	}
	if a.BackupCode != "" && !backupCodeRe.MatchString(a.BackupCode) {
		return errors.Wrapf(ErrInvalidInput, "backup code %q is not 6 digits", a.BackupCode)
	}
	if a.ScannedBy == "" {
		return errors.Wrap(ErrInvalidInput, "scanned_by is empty")
	}
	return nil
}
