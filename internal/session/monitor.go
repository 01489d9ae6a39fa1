package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/model"
)

// Phase is the lockdown monitor's state.
type Phase int

const (
	// PhaseNotActive: before fullscreen and webcam are both confirmed.
	PhaseNotActive Phase = iota
	// PhaseActive: lockdown is in force, observations are classified.
	PhaseActive
	// PhaseViolated: the violation threshold was reached and the
	// termination path has been invoked.
	PhaseViolated
	// PhaseTerminated: the termination path completed.
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseNotActive:
		return "NOT_ACTIVE"
	case PhaseActive:
		return "ACTIVE"
	case PhaseViolated:
		return "VIOLATED"
	case PhaseTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Monitor observes the environment and the webcam liveness signal while
// the lockdown is active. Each detected cheating vector independently
// raises a SecurityEvent; the monitor never decides policy itself — it
// reports violations upward and the threshold decides when the
// termination path is invoked.
type Monitor struct {
	mu     sync.Mutex
	phase  Phase
	seq    int
	events []model.SecurityEvent

	clock     Clock
	cam       Camera
	screen    Screen
	env       EnvironmentSource
	reporter  Reporter
	threshold int
	liveness  time.Duration

	// onTerminate fires once, with the event that crossed the threshold.
	onTerminate func(ev model.SecurityEvent)
	log         zerolog.Logger
}

// NewMonitor creates a monitor in PhaseNotActive. reporter may be nil.
// threshold is the number of violations that triggers termination; values
// below 1 are treated as 1 — at least one violation must terminate.
func NewMonitor(clock Clock, cam Camera, screen Screen, env EnvironmentSource, reporter Reporter, threshold int, liveness time.Duration, onTerminate func(model.SecurityEvent), log zerolog.Logger) *Monitor {
	if threshold < 1 {
		threshold = 1
	}
	return &Monitor{
		clock:       clock,
		cam:         cam,
		screen:      screen,
		env:         env,
		reporter:    reporter,
		threshold:   threshold,
		liveness:    liveness,
		onTerminate: onTerminate,
		log:         log.With().Str("component", "lockdown_monitor").Logger(),
	}
}

// Activate requests fullscreen and the webcam stream. The monitor enters
// PhaseActive only when both succeed. A camera failure is escalated to a
// webcam_failure violation: the session cannot be proctored without one.
func (m *Monitor) Activate(ctx context.Context) error {
	if err := m.screen.EnterFullscreen(ctx); err != nil {
		return fmt.Errorf("enter fullscreen: %w", err)
	}

	if err := m.cam.Start(ctx); err != nil {
		m.log.Error().Err(err).Msg("Webcam failed to start")
		// Transition to ACTIVE first so the violation is raised from a
		// defined state, then escalate.
		m.setPhase(PhaseActive)
		m.raise(model.ViolationWebcamFailure)
		return fmt.Errorf("start webcam: %w", err)
	}

	if m.cam.LiveTracks() == 0 {
		m.setPhase(PhaseActive)
		m.raise(model.ViolationWebcamFailure)
		return fmt.Errorf("webcam delivered no playable track")
	}

	m.setPhase(PhaseActive)
	m.log.Info().Msg("Lockdown active")
	return nil
}

// Run consumes environment events and polls webcam liveness until ctx is
// cancelled or the source closes. Call in a goroutine after Activate.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.liveness)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.env.Events():
			if !ok {
				return
			}
			m.Observe(ev)
		case <-ticker.C():
			m.pollLiveness()
		}
	}
}

// Observe classifies one raw environment event. Exported so hosts that
// deliver events by callback rather than channel can feed the monitor
// directly; classification is a no-op outside PhaseActive.
func (m *Monitor) Observe(ev EnvEvent) {
	violation, ok := classify(ev.Kind)
	if !ok {
		m.log.Debug().Str("kind", string(ev.Kind)).Msg("Ignoring unclassified event")
		return
	}
	m.raise(violation)
}

// pollLiveness raises webcam_stopped when the stream reports zero active
// video tracks.
func (m *Monitor) pollLiveness() {
	if m.Phase() != PhaseActive {
		return
	}
	if m.cam.LiveTracks() == 0 {
		m.raise(model.ViolationWebcamStopped)
	}
}

// classify maps a raw observation to its violation tag.
func classify(kind EnvEventKind) (model.ViolationType, bool) {
	switch kind {
	case EnvVisibilityHidden:
		return model.ViolationTabSwitch, true
	case EnvFullscreenLost:
		return model.ViolationFullscreenExit, true
	case EnvWindowBlur:
		return model.ViolationWindowBlur, true
	case EnvWindowResize:
		return model.ViolationWindowResize, true
	case EnvMouseLeave:
		return model.ViolationMouseLeave, true
	case EnvBlockedKey:
		return model.ViolationDevTools, true
	case EnvClipboardKey:
		return model.ViolationCopyPaste, true
	case EnvContextMenu:
		return model.ViolationContextMenu, true
	case EnvPrintScreen:
		return model.ViolationPrintScreen, true
	default:
		return "", false
	}
}

// raise appends a SecurityEvent, reports it, and invokes the termination
// callback once the cumulative counter reaches the threshold. Violations
// are only counted while ACTIVE; a student alt-tabbing during teardown
// must not re-enter the termination path.
func (m *Monitor) raise(violation model.ViolationType) {
	m.mu.Lock()
	if m.phase != PhaseActive {
		m.mu.Unlock()
		return
	}
	m.seq++
	ev := model.SecurityEvent{
		Type: violation,
		At:   m.clock.Now(),
		Seq:  m.seq,
	}
	m.events = append(m.events, ev)
	terminate := m.seq >= m.threshold
	if terminate {
		m.phase = PhaseViolated
	}
	m.mu.Unlock()

	m.log.Warn().
		Str("violation", string(violation)).
		Int("seq", ev.Seq).
		Bool("terminal", terminate).
		Msg("Security violation detected")

	if m.reporter != nil {
		if err := m.reporter.ReportViolation(ev); err != nil {
			m.log.Warn().Err(err).Msg("Violation report failed")
		}
	}

	if terminate && m.onTerminate != nil {
		m.onTerminate(ev)
	}
}

// MarkTerminated records that the termination path completed.
func (m *Monitor) MarkTerminated() {
	m.setPhase(PhaseTerminated)
}

// Phase returns the current lockdown phase.
func (m *Monitor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Events returns a copy of the session's violation log.
func (m *Monitor) Events() []model.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SecurityEvent, len(m.events))
	copy(out, m.events)
	return out
}

// ViolationCount returns the current value of the violation counter.
func (m *Monitor) ViolationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

func (m *Monitor) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}
