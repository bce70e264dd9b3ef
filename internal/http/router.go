package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/ticket-wallet/internal/observability"
)

func SetupRouter(h *Handlers, logger observability.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Post("/v1/tickets", h.CreateTicket)
	r.Post("/v1/tickets/batch", h.CreateTicketBatch)
	r.Get("/v1/tickets", h.ListTickets)
	r.Get("/v1/tickets/{id}", h.GetTicket)
	r.Delete("/v1/tickets/{id}", h.DeleteTicket)
	r.Post("/v1/tickets/mark-used", h.MarkUsed)
	r.Get("/v1/storage", h.StorageInfo)

	r.Post("/v1/scans", h.SubmitScan)
	r.Get("/v1/scans/{id}", h.GetScan)

	r.Get("/v1/queue", h.ListQueue)
	r.Post("/v1/queue/drain", h.DrainQueue)
	r.Post("/v1/queue/retry", h.RetryFailed)
	r.Delete("/v1/queue/completed", h.ClearCompleted)
	r.Delete("/v1/queue", h.ClearQueue)

	r.Get("/v1/sync/status", h.SyncStatus)
	r.Post("/v1/sync", h.ForceSync)
	r.Post("/v1/connectivity", h.SetConnectivity)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
