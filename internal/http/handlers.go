package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/robertarktes/ticket-wallet/internal/connectivity"
	"github.com/robertarktes/ticket-wallet/internal/domain"
	"github.com/robertarktes/ticket-wallet/internal/gateway"
	"github.com/robertarktes/ticket-wallet/internal/observability"
	"github.com/robertarktes/ticket-wallet/internal/queue"
	"github.com/robertarktes/ticket-wallet/internal/storage/sqlite"
	"github.com/robertarktes/ticket-wallet/internal/syncer"
)

type Handlers struct {
	store      *sqlite.TicketStore
	queue      *queue.Queue
	reconciler *syncer.Reconciler
	monitor    *connectivity.Monitor
	backend    *gateway.Client
	logger     observability.Logger
}

func NewHandlers(store *sqlite.TicketStore, q *queue.Queue, reconciler *syncer.Reconciler, monitor *connectivity.Monitor, backend *gateway.Client, logger observability.Logger) *Handlers {
	return &Handlers{
		store:      store,
		queue:      q,
		reconciler: reconciler,
		monitor:    monitor,
		backend:    backend,
		logger:     logger,
	}
}

// CreateTicket is the purchase-completion write path: the newly issued
// ticket lands in the wallet so it renders offline from then on.
func (h *Handlers) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var ticket domain.Ticket
	if err := json.NewDecoder(r.Body).Decode(&ticket); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.Put(r.Context(), ticket); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": ticket.ID})
}

func (h *Handlers) CreateTicketBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tickets []domain.Ticket `json:"tickets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.PutBatch(r.Context(), req.Tickets); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"count": len(req.Tickets)})
}

func (h *Handlers) ListTickets(w http.ResponseWriter, r *http.Request) {
	var (
		tickets []domain.Ticket
		err     error
	)
	switch {
	case r.URL.Query().Get("owner") != "":
		tickets, err = h.store.GetByOwner(r.Context(), r.URL.Query().Get("owner"))
	case r.URL.Query().Get("status") != "":
		status := domain.TicketStatus(r.URL.Query().Get("status"))
		if !status.Valid() {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		tickets, err = h.store.GetByStatus(r.Context(), status)
	default:
		tickets, err = h.store.GetAll(r.Context())
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handlers) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) StorageInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.StorageInfo(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// SubmitScan verifies a code directly when the backend is reachable and
// falls back to the durable queue on transport failure or while offline.
// A queued scan is never lost; it replays on the next drain.
func (h *Handlers) SubmitScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QRCode     string `json:"qr_code"`
		BackupCode string `json:"backup_code"`
		ScannedBy  string `json:"scanned_by"`
		Location   string `json:"location"`
		DeviceInfo string `json:"device_info"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	attempt := domain.NewAttempt(req.QRCode, req.BackupCode, req.ScannedBy, req.Location, req.DeviceInfo)
	if err := attempt.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.monitor.Online() {
		var (
			result *gateway.VerifyResult
			err    error
		)
		if attempt.QRCode != "" {
			result, err = h.backend.VerifyByQR(r.Context(), attempt.QRCode, attempt.ScannedBy, attempt.Location, attempt.DeviceInfo)
		} else {
			result, err = h.backend.VerifyByBackupCode(r.Context(), attempt.BackupCode, attempt.ScannedBy, attempt.Location, attempt.DeviceInfo)
		}
		if err == nil {
			writeJSON(w, http.StatusOK, result)
			return
		}
		if !errors.Is(err, domain.ErrNetwork) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		h.logger.WithError(err).Warn("direct verification failed, queueing attempt")
	}

	id, err := h.queue.Enqueue(r.Context(), attempt)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"attempt_id": id, "status": domain.AttemptPending})
}

func (h *Handlers) GetScan(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// MarkUsed is the scanner's admission confirmation. It is a server-side
// compare-and-set and therefore requires connectivity.
func (h *Handlers) MarkUsed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QRCode    string `json:"qr_code"`
		ScannedBy string `json:"scanned_by"`
		Location  string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.QRCode == "" || req.ScannedBy == "" {
		http.Error(w, "qr_code and scanned_by are required", http.StatusBadRequest)
		return
	}
	if !h.monitor.Online() {
		http.Error(w, "offline: admission requires the backend", http.StatusServiceUnavailable)
		return
	}

	result, err := h.backend.MarkUsed(r.Context(), req.QRCode, req.ScannedBy, req.Location)
	if err != nil {
		if errors.Is(err, domain.ErrNetwork) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if result.AlreadyUsed {
		writeJSON(w, http.StatusConflict, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) ListQueue(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.queue.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	pending, err := h.queue.PendingCount(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if attempts == nil {
		attempts = []domain.VerificationAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts, "pending_count": pending})
}

func (h *Handlers) DrainQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Drain(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) RetryFailed(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.RetryFailed(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.ClearCompleted(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.ClearAll(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reconciler.Status(r.Context()))
}

func (h *Handlers) ForceSync(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.ForceSync(r.Context()); err != nil {
		// The wallet stays readable from the last synced state; report
		// the failure without pretending anything changed.
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.reconciler.Status(r.Context()))
}

// SetConnectivity ingests the platform's online/offline signal.
func (h *Handlers) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.monitor.SetOnline(req.Online)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.StorageInfo(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
