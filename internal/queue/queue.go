// Package queue holds verification attempts that could not be settled
// against the backend, and replays them in enqueue order once it can.
package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-wallet/internal/domain"
	"github.com/robertarktes/ticket-wallet/internal/gateway"
	"github.com/robertarktes/ticket-wallet/internal/observability"
	"github.com/robertarktes/ticket-wallet/internal/storage/sqlite"
)

// Verifier settles one attempt against the backend. Satisfied by
// gateway.Client.
type Verifier interface {
	VerifyByQR(ctx context.Context, qrCode, scannedBy, location, deviceInfo string) (*gateway.VerifyResult, error)
	VerifyByBackupCode(ctx context.Context, backupCode, scannedBy, location, deviceInfo string) (*gateway.VerifyResult, error)
}

// ConnectivitySource reports the current online flag. Satisfied by
// connectivity.Monitor.
type ConnectivitySource interface {
	Online() bool
}

type Queue struct {
	store    *sqlite.AttemptStore
	verifier Verifier
	conn     ConnectivitySource
	logger   observability.Logger

	// draining guards against concurrent re-entry into Drain.
	draining atomic.Bool
}

func New(store *sqlite.AttemptStore, verifier Verifier, conn ConnectivitySource, logger observability.Logger) *Queue {
	return &Queue{store: store, verifier: verifier, conn: conn, logger: logger}
}

// Enqueue persists the attempt before returning, whatever the
// connectivity state. When online it also kicks off a best-effort drain;
// correctness never depends on that drain happening.
func (q *Queue) Enqueue(ctx context.Context, a domain.VerificationAttempt) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	if a.ID == "" || a.Status == "" {
		return "", errors.Wrap(domain.ErrInvalidInput, "attempt not initialized via NewAttempt")
	}
	if err := q.store.Append(ctx, a); err != nil {
		return "", err
	}
	q.updatePendingGauge(ctx)
	q.logger.WithField("attempt_id", a.ID).Info("verification attempt queued")

	if q.conn.Online() {
		go func() {
			if err := q.Drain(context.Background()); err != nil {
				q.logger.WithError(err).Warn("post-enqueue drain failed")
			}
		}()
	}
	return a.ID, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*domain.VerificationAttempt, error) {
	return q.store.Get(ctx, id)
}

func (q *Queue) List(ctx context.Context) ([]domain.VerificationAttempt, error) {
	return q.store.List(ctx)
}

func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.CountByStatus(ctx, domain.AttemptPending)
}

// Drain replays pending attempts strictly in enqueue order, one at a
// time. A later scan of the same ticket must observe the server-side
// effect of the earlier one, so attempts are never settled concurrently.
// Calling Drain while a run is already in flight is a no-op; entries
// enqueued during a run are picked up before it exits.
func (q *Queue) Drain(ctx context.Context) error {
	if !q.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer q.draining.Store(false)
	defer q.updatePendingGauge(ctx)

	if !q.conn.Online() {
		return nil
	}

	// Entries stuck in processing belong to a run that died mid-call;
	// the in-flight guard means no live run can own them.
	if n, err := q.store.ResetProcessing(ctx); err != nil {
		return err
	} else if n > 0 {
		q.logger.WithField("count", n).Warn("recovered orphaned processing attempts")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !q.conn.Online() {
			return nil
		}

		attempt, err := q.store.NextPending(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		taken, err := q.store.MarkProcessing(ctx, attempt.ID)
		if err != nil {
			return err
		}
		if !taken {
			continue
		}

		q.settle(ctx, attempt)
	}
}

// settle performs the network round-trip for one attempt. Network
// failure is absorbed into the entry's failed state; it never propagates
// to the drain caller.
func (q *Queue) settle(ctx context.Context, attempt *domain.VerificationAttempt) {
	var (
		result *gateway.VerifyResult
		err    error
	)
	if attempt.QRCode != "" {
		result, err = q.verifier.VerifyByQR(ctx, attempt.QRCode, attempt.ScannedBy, attempt.Location, attempt.DeviceInfo)
	} else {
		result, err = q.verifier.VerifyByBackupCode(ctx, attempt.BackupCode, attempt.ScannedBy, attempt.Location, attempt.DeviceInfo)
	}
	if err != nil {
		observability.QueueDrainedTotal.WithLabelValues("failed").Inc()
		q.logger.WithError(err).WithField("attempt_id", attempt.ID).Warn("verification attempt failed")
		if markErr := q.store.MarkFailed(ctx, attempt.ID, err.Error()); markErr != nil {
			q.logger.WithError(markErr).Error("failed to mark attempt failed")
		}
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		if markErr := q.store.MarkFailed(ctx, attempt.ID, err.Error()); markErr != nil {
			q.logger.WithError(markErr).Error("failed to mark attempt failed")
		}
		return
	}
	observability.QueueDrainedTotal.WithLabelValues("completed").Inc()
	if err := q.store.MarkCompleted(ctx, attempt.ID, payload); err != nil {
		q.logger.WithError(err).Error("failed to mark attempt completed")
	}
}

// RetryFailed moves every failed attempt back to pending, clears its
// error, and drains.
func (q *Queue) RetryFailed(ctx context.Context) error {
	n, err := q.store.ResetFailed(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		q.logger.WithField("count", n).Info("retrying failed attempts")
	}
	return q.Drain(ctx)
}

// ClearCompleted removes settled entries. Removal is always an explicit
// operator action; nothing is dropped silently.
func (q *Queue) ClearCompleted(ctx context.Context) error {
	return q.store.DeleteCompleted(ctx)
}

func (q *Queue) ClearAll(ctx context.Context) error {
	if err := q.store.DeleteAll(ctx); err != nil {
		return err
	}
	q.updatePendingGauge(ctx)
	return nil
}

func (q *Queue) updatePendingGauge(ctx context.Context) {
	if n, err := q.store.CountByStatus(ctx, domain.AttemptPending); err == nil {
		observability.QueuePending.Set(float64(n))
	}
}
