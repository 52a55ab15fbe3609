// Package connectivity tracks whether the remote store is reachable.
package connectivity

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prober checks reachability of the remote store.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor holds the online/offline flag. It changes on probe results and on
// explicit SetOnline calls. Listeners run only on transitions, one at a
// time, in the order the transitions happened.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	online    bool
	listeners []func(bool)

	// notify serializes listener calls across goroutines.
	notify sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor returns a monitor that probes every interval. A zero interval
// disables polling and leaves only the initial probe and SetOnline.
func NewMonitor(prober Prober, interval time.Duration, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  3 * time.Second,
		log:      log,
	}
}

// OnChange registers fn to be called with the new state on every transition.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start takes the initial state from one probe and begins polling.
func (m *Monitor) Start(ctx context.Context) {
	m.probe(ctx)
	if m.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop ends polling and waits for the poller to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetOnline forces the state, as a platform online/offline event would.
func (m *Monitor) SetOnline(online bool) {
	m.notify.Lock()
	defer m.notify.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	m.log.Info("connectivity changed", zap.Bool("online", online))
	for _, fn := range listeners {
		fn(online)
	}
}

func (m *Monitor) probe(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.prober.Ping(pctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		m.log.Debug("probe failed", zap.Error(err))
	}
	m.SetOnline(err == nil)
}
