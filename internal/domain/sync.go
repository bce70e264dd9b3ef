package domain

import "time"

// SyncError is one recorded reconciliation failure. The history is bounded
// and advisory; a failed sync never invalidates the cached wallet.
type SyncError struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// SyncStatus is ephemeral, process-wide state. It is never persisted.
type SyncStatus struct {
	IsOnline           bool        `json:"is_online"`
	IsSyncing          bool        `json:"is_syncing"`
	LastSyncAt         *time.Time  `json:"last_sync_at,omitempty"`
	PendingChangeCount int         `json:"pending_change_count"`
	SyncErrors         []SyncError `json:"sync_errors,omitempty"`
}
