package fraud

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// SuspendedMessage is shown once the backend suspends the attempt for fraud.
const SuspendedMessage = "Examen suspendido por fraude (3 avisos)."

// Reporter registers a fraud warning with the backend.
type Reporter interface {
	ReportFraudWarning(ctx context.Context, attemptID int64, motive model.Motive) (*model.WarningReply, error)
}

// Config wires a Monitor.
type Config struct {
	AttemptID int64
	Reporter  Reporter
	// Active gates every signal; it is evaluated before reporting.
	Active func() bool
	// OnWarning runs after a non-suspending warning; the warn modal is open.
	OnWarning func(warnings int)
	// OnSuspend runs once when the backend answers suspendido=true.
	OnSuspend func(warnings int)
	Log       zerolog.Logger
}

// Monitor turns tab-switch and blur signals into fraud warnings.
type Monitor struct {
	cfg Config

	mu        sync.Mutex
	attached  bool
	modalOpen bool
	inflight  bool
	suspended bool
	warnings  int
}

// NewMonitor creates a detached Monitor.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{cfg: cfg}
}

// Attach starts accepting signals.
func (m *Monitor) Attach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.suspended {
		m.attached = true
	}
}

// Detach drops every further signal.
func (m *Monitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = false
}

// Attached reports whether signals are accepted.
func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

// Signal reports one suspicious event. It returns false when the signal was
// suppressed: detached, inactive, modal open, a report already in flight or
// the attempt already suspended. Report failures are logged and dropped.
func (m *Monitor) Signal(ctx context.Context, motive model.Motive) bool {
	if !motive.Valid() {
		m.cfg.Log.Debug().Str("motive", string(motive)).Msg("Unknown fraud motive ignored")
		return false
	}
	if m.cfg.Active != nil && !m.cfg.Active() {
		return false
	}

	m.mu.Lock()
	if !m.attached || m.modalOpen || m.inflight || m.suspended {
		m.mu.Unlock()
		return false
	}
	m.inflight = true
	prev := m.warnings
	m.mu.Unlock()

	reply, err := m.cfg.Reporter.ReportFraudWarning(ctx, m.cfg.AttemptID, motive)

	m.mu.Lock()
	m.inflight = false
	if err != nil {
		m.mu.Unlock()
		m.cfg.Log.Error().Err(err).Str("motive", string(motive)).Msg("Failed to report fraud warning")
		return false
	}
	if !m.attached {
		m.mu.Unlock()
		return false
	}

	warnings := prev + 1
	if reply != nil && reply.Warnings != nil {
		warnings = *reply.Warnings
	}
	m.warnings = warnings

	suspended := reply != nil && reply.Suspended
	if suspended {
		m.suspended = true
		m.modalOpen = false
		m.attached = false
	} else {
		m.modalOpen = true
	}
	m.mu.Unlock()

	m.cfg.Log.Warn().
		Str("motive", string(motive)).
		Int("warnings", warnings).
		Bool("suspended", suspended).
		Msg("Fraud warning registered")

	if suspended {
		if m.cfg.OnSuspend != nil {
			m.cfg.OnSuspend(warnings)
		}
	} else if m.cfg.OnWarning != nil {
		m.cfg.OnWarning(warnings)
	}
	return true
}

// Acknowledge closes the warn modal so later signals are reported again.
func (m *Monitor) Acknowledge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modalOpen = false
}

// Suspend marks the attempt suspended from outside (e.g. a rejected save)
// and detaches.
func (m *Monitor) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = true
	m.modalOpen = false
	m.attached = false
}

// Warnings returns the warnings count last reported by the backend.
func (m *Monitor) Warnings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warnings
}

// ModalOpen reports whether the warn modal is showing.
func (m *Monitor) ModalOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modalOpen
}
