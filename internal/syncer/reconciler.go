// Package syncer pulls the owner's canonical ticket set from the backend
// and overwrites the local wallet with it. The server is the only origin
// of ticket state, so reconciliation is replace-with-latest-truth, never
// a merge, and nothing local is ever uploaded.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-wallet/internal/domain"
	"github.com/robertarktes/ticket-wallet/internal/observability"
	"github.com/robertarktes/ticket-wallet/internal/storage/sqlite"
	"golang.org/x/sync/singleflight"
)

type Event string

const (
	EventSyncStart    Event = "sync-start"
	EventSyncComplete Event = "sync-complete"
	EventSyncError    Event = "sync-error"
	EventOnline       Event = "online"
	EventOffline      Event = "offline"
)

// Lister fetches the canonical ticket set. Satisfied by gateway.Client.
type Lister interface {
	ListMyTickets(ctx context.Context, ownerID string) ([]domain.Ticket, error)
}

// PendingCounter reports queued verification attempts for SyncStatus.
// Satisfied by queue.Queue.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// ConnectivitySource is the monitor surface the reconciler needs.
type ConnectivitySource interface {
	Online() bool
	Subscribe(fn func(online bool)) func()
}

const maxSyncErrors = 10

type Reconciler struct {
	store   *sqlite.TicketStore
	lister  Lister
	conn    ConnectivitySource
	pending PendingCounter
	ownerID string
	logger  observability.Logger

	group singleflight.Group

	mu          sync.Mutex
	syncing     bool
	lastSyncAt  *time.Time
	syncErrors  []domain.SyncError
	subscribers map[int]func(Event)
	nextID      int
}

func NewReconciler(store *sqlite.TicketStore, lister Lister, conn ConnectivitySource, pending PendingCounter, ownerID string, logger observability.Logger) *Reconciler {
	return &Reconciler{
		store:       store,
		lister:      lister,
		conn:        conn,
		pending:     pending,
		ownerID:     ownerID,
		logger:      logger,
		subscribers: make(map[int]func(Event)),
	}
}

// Subscribe registers a lifecycle event callback and returns the
// matching unsubscribe. For any given run, sync-start is emitted before
// sync-complete or sync-error.
func (r *Reconciler) Subscribe(fn func(Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subscribers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subscribers, id)
	}
}

func (r *Reconciler) Status(ctx context.Context) domain.SyncStatus {
	r.mu.Lock()
	status := domain.SyncStatus{
		IsOnline:   r.conn.Online(),
		IsSyncing:  r.syncing,
		LastSyncAt: r.lastSyncAt,
		SyncErrors: append([]domain.SyncError(nil), r.syncErrors...),
	}
	r.mu.Unlock()

	if n, err := r.pending.PendingCount(ctx); err == nil {
		status.PendingChangeCount = n
	}
	return status
}

// ForceSync runs one reconciliation. Requests arriving while a sync is
// in flight collapse into it rather than queueing a second run.
func (r *Reconciler) ForceSync(ctx context.Context) error {
	_, err, _ := r.group.Do("sync", func() (interface{}, error) {
		return nil, r.sync(ctx)
	})
	return err
}

func (r *Reconciler) sync(ctx context.Context) error {
	r.emit(EventSyncStart)
	r.setSyncing(true)
	defer r.setSyncing(false)

	start := time.Now()
	err := r.reconcile(ctx)
	observability.SyncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.SyncRunsTotal.WithLabelValues("error").Inc()
		r.recordError(err)
		r.logger.WithError(err).Warn("sync failed, keeping last synced state")
		r.emit(EventSyncError)
		return err
	}

	now := time.Now().UTC()
	r.mu.Lock()
	r.lastSyncAt = &now
	r.mu.Unlock()
	observability.SyncRunsTotal.WithLabelValues("complete").Inc()
	r.emit(EventSyncComplete)
	return nil
}

// reconcile applies the server-wins policy: upsert everything the server
// reports, then drop local records the server no longer lists (the
// ticket was revoked or removed upstream). Any failure before the write
// leaves the local wallet exactly as it was.
func (r *Reconciler) reconcile(ctx context.Context) error {
	if !r.conn.Online() {
		return errors.Wrap(domain.ErrNetwork, "offline")
	}

	serverTickets, err := r.lister.ListMyTickets(ctx, r.ownerID)
	if err != nil {
		return err
	}

	local, err := r.store.GetByOwner(ctx, r.ownerID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	serverIDs := make(map[string]struct{}, len(serverTickets))
	for i := range serverTickets {
		serverTickets[i].LastSyncedAt = &now
		serverIDs[serverTickets[i].ID] = struct{}{}
	}

	// All-or-nothing: a malformed server record fails validation inside
	// PutBatch and the whole pass aborts with the wallet untouched.
	if len(serverTickets) > 0 {
		if err := r.store.PutBatch(ctx, serverTickets); err != nil {
			return err
		}
	}

	for _, t := range local {
		if _, ok := serverIDs[t.ID]; ok {
			continue
		}
		if err := r.store.Delete(ctx, t.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	r.logger.WithField("server_count", len(serverTickets)).
		WithField("local_count", len(local)).
		Info("reconciliation complete")
	return nil
}

// Run drives the standard trigger points: a short-delay initial sync
// when online, periodic ticks, and the offline->online edge. Failures
// here are advisory; the wallet stays readable from whatever was last
// synced.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	unsubscribe := r.conn.Subscribe(func(online bool) {
		if online {
			r.emit(EventOnline)
			go func() {
				_ = r.ForceSync(ctx)
			}()
		} else {
			r.emit(EventOffline)
		}
	})
	defer unsubscribe()

	startup := time.NewTimer(2 * time.Second)
	defer startup.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-startup.C:
			if r.conn.Online() {
				_ = r.ForceSync(ctx)
			}
		case <-ticker.C:
			if r.conn.Online() {
				_ = r.ForceSync(ctx)
			}
		}
	}
}

func (r *Reconciler) setSyncing(v bool) {
	r.mu.Lock()
	r.syncing = v
	r.mu.Unlock()
}

func (r *Reconciler) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncErrors = append(r.syncErrors, domain.SyncError{At: time.Now().UTC(), Message: err.Error()})
	if len(r.syncErrors) > maxSyncErrors {
		r.syncErrors = r.syncErrors[len(r.syncErrors)-maxSyncErrors:]
	}
}

func (r *Reconciler) emit(e Event) {
	r.mu.Lock()
	subs := make([]func(Event), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}
