// Package connectivity observes network reachability and emits online/offline
// events. It performs an application-level health probe rather than trusting
// the link state alone, and debounces the transition to online so a flapping
// link does not trigger a sync storm. It never performs sync itself.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the monitor's view of reachability.
type State string

const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Event is delivered to subscribers on every state transition.
type Event struct {
	State State
	At    time.Time
}

// ProbeFunc checks whether the remote API is reachable. A nil error means
// reachable. The default probe is the remote client's health endpoint.
type ProbeFunc func(ctx context.Context) error

// Default monitor configuration constants
const (
	// DefaultProbeInterval is how often the health probe runs.
	DefaultProbeInterval = 15 * time.Second
	// DefaultDebounceWindow is how long the link must stay up before an
	// online event is emitted.
	DefaultDebounceWindow = 5 * time.Second
)

// Opts holds configuration for the monitor.
type Opts struct {
	ProbeInterval  time.Duration
	DebounceWindow time.Duration
}

// Option configures monitor construction.
type Option func(*Opts)

// WithProbeInterval sets the health probe interval.
func WithProbeInterval(d time.Duration) Option {
	return func(o *Opts) { o.ProbeInterval = d }
}

// WithDebounceWindow sets the online-transition stability window.
func WithDebounceWindow(d time.Duration) Option {
	return func(o *Opts) { o.DebounceWindow = d }
}

// Monitor tracks reachability and notifies subscribers of transitions.
type Monitor struct {
	probe          ProbeFunc
	probeInterval  time.Duration
	debounceWindow time.Duration

	mu          sync.Mutex
	state       State
	upSince     time.Time // zero when the last probe failed
	subscribers []chan Event
}

// NewMonitor creates a connectivity monitor using the given probe.
func NewMonitor(probe ProbeFunc, opts ...Option) *Monitor {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	return &Monitor{
		probe:          probe,
		probeInterval:  cfg.ProbeInterval,
		debounceWindow: cfg.DebounceWindow,
		state:          StateUnknown,
	}
}

// State returns the current reachability state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel receiving state transition events. The channel
// is buffered; slow subscribers drop events rather than blocking the monitor.
func (m *Monitor) Subscribe() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event, 4)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe removes a channel previously returned by Subscribe. The channel
// receives no further events; it is not closed. Unknown channels are ignored.
func (m *Monitor) Unsubscribe(ch <-chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// Run starts the probe loop. It blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("Monitor.Run: starting connectivity monitor", "probeInterval", m.probeInterval, "debounceWindow", m.debounceWindow)

	// Probe immediately so startup does not wait a full interval.
	m.poll(ctx)

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Monitor.Run: stopping")
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// ReportReachability feeds a platform reachability signal into the monitor,
// e.g. from an OS network-change notification. A false value transitions to
// offline immediately; a true value starts the debounce window, with the
// next successful probe confirming it.
func (m *Monitor) ReportReachability(up bool) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !up {
		m.upSince = time.Time{}
		m.transitionLocked(StateOffline, now)
		return
	}
	if m.upSince.IsZero() {
		m.upSince = now
	}
}

func (m *Monitor) poll(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeInterval)
	err := m.probe(probeCtx)
	cancel()
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		slog.Debug("Monitor.poll: probe failed", "error", err)
		m.upSince = time.Time{}
		m.transitionLocked(StateOffline, now)
		return
	}

	if m.upSince.IsZero() {
		m.upSince = now
	}
	// Only emit online after the link has been stable for the debounce
	// window; until then the state stays as-is.
	if now.Sub(m.upSince) >= m.debounceWindow {
		m.transitionLocked(StateOnline, now)
	}
}

func (m *Monitor) transitionLocked(next State, at time.Time) {
	if m.state == next {
		return
	}
	slog.Info("Monitor: connectivity transition", "from", m.state, "to", next)
	m.state = next
	ev := Event{State: next, At: at}
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
