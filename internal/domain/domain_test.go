package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTicket() Ticket {
	return Ticket{
		ID:           "tkt-1",
		EventID:      "evt-1",
		OwnerID:      "usr-1",
		TierID:       "tier-1",
		QRCode:       "QR-OPAQUE-TOKEN",
		BackupCode:   "123456",
		Status:       TicketValid,
		PurchaseDate: time.Now(),
		EventDetails: EventDetails{Title: "Vientiane Jazz Night", Venue: "National Culture Hall", StartTime: time.Now()},
		TierDetails:  TierDetails{Name: "VIP", Price: decimal.NewFromInt(150000)},
	}
}

func TestTicketValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Ticket)
		wantErr bool
	}{
		{"valid", func(*Ticket) {}, false},
		{"empty id", func(tk *Ticket) { tk.ID = "" }, true},
		{"empty qr code", func(tk *Ticket) { tk.QRCode = "" }, true},
		{"backup code too short", func(tk *Ticket) { tk.BackupCode = "12345" }, true},
		{"backup code non-digit", func(tk *Ticket) { tk.BackupCode = "12345a" }, true},
		{"backup code too long", func(tk *Ticket) { tk.BackupCode = "1234567" }, true},
		{"unknown status", func(tk *Ticket) { tk.Status = "pending" }, true},
		{"used status", func(tk *Ticket) { tk.Status = TicketUsed }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := validTicket()
			tt.mutate(&tk)
			err := tk.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewAttempt(t *testing.T) {
	a := NewAttempt("QR-1", "", "scanner-7", "gate A", "android 14")
	require.NotEmpty(t, a.ID)
	assert.Equal(t, AttemptPending, a.Status)
	assert.False(t, a.Timestamp.IsZero())
	assert.NoError(t, a.Validate())

	b := NewAttempt("QR-2", "", "scanner-7", "", "")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestAttemptValidate(t *testing.T) {
	tests := []struct {
		name       string
		qr, backup string
		scannedBy  string
		wantErr    bool
	}{
		{"qr only", "QR-1", "", "scanner-1", false},
		{"backup only", "", "654321", "scanner-1", false},
		{"neither code", "", "", "scanner-1", true},
		{"both codes", "QR-1", "654321", "scanner-1", true},
		{"bad backup code", "", "65432", "scanner-1", true},
		{"missing scanner", "QR-1", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAttempt(tt.qr, tt.backup, tt.scannedBy, "", "")
			err := a.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
