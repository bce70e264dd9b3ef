package domain

import (
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

var backupCodeRe = regexp.MustCompile(`^\d{6}$`)

// EventDetails is denormalized onto the ticket so the wallet renders
// without any network call.
type EventDetails struct {
	Title     string     `json:"title"`
	Venue     string     `json:"venue"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Address   string     `json:"address,omitempty"`
	City      string     `json:"city,omitempty"`
	Country   string     `json:"country,omitempty"`
	Images    []string   `json:"images,omitempty"`
}

type TierDetails struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Ticket struct {
	ID                 string            `json:"id"`
	EventID            string            `json:"event_id"`
	OwnerID            string            `json:"owner_id"`
	TierID             string            `json:"tier_id"`
	QRCode             string            `json:"qr_code"`
	BackupCode         string            `json:"backup_code"`
	Status             TicketStatus      `json:"status"`
	PurchaseDate       time.Time         `json:"purchase_date"`
	UsedAt             *time.Time        `json:"used_at,omitempty"`
	EventDetails       EventDetails      `json:"event_details"`
	TierDetails        TierDetails       `json:"tier_details"`
	CulturalSelections map[string]string `json:"cultural_selections,omitempty"`
	LastSyncedAt       *time.Time        `json:"last_synced_at,omitempty"`
}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketValid, TicketUsed, TicketCancelled, TicketRefunded:
		return true
	}
	return false
}

// Validate rejects malformed tickets before any durable write is attempted.
func (t *Ticket) Validate() error {
	if t.ID == "" {
		return errors.Wrap(ErrInvalidInput, "ticket id is empty")
	}
	if t.QRCode == "" {
		return errors.Wrap(ErrInvalidInput, "qr code is empty")
	}
	if !backupCodeRe.MatchString(t.BackupCode) {
		return errors.Wrapf(ErrInvalidInput, "backup code %q is not 6 digits", t.BackupCode)
	}
	if !t.Status.Valid() {
		return errors.Wrapf(ErrInvalidInput, "unknown ticket status %q", t.Status)
	}
	return nil
}
