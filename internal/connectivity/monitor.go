// Package connectivity tracks whether the backend is reachable and fans
// out edge-triggered online/offline notifications to the queue and the
// reconciler.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/robertarktes/ticket-wallet/internal/observability"
)

// Pinger is the reachability probe, satisfied by gateway.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	mu          sync.Mutex
	online      bool
	subscribers map[int]func(online bool)
	nextID      int

	pinger Pinger
	logger observability.Logger
}

// NewMonitor starts offline; the first platform signal or probe result
// establishes the real state.
func NewMonitor(pinger Pinger, logger observability.Logger) *Monitor {
	return &Monitor{
		subscribers: make(map[int]func(online bool)),
		pinger:      pinger,
		logger:      logger,
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a platform connectivity signal. Subscribers are only
// notified on a transition.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.WithField("online", online).Info("connectivity changed")
	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe registers an edge-triggered callback and returns the
// matching unsubscribe.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// Run probes the backend on an interval, translating request-level
// reachability into online/offline edges. Platform signals delivered via
// SetOnline keep working alongside it.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			err := m.pinger.Ping(probeCtx)
			cancel()
			m.SetOnline(err == nil)
		}
	}
}
