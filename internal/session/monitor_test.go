package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preplab/proctord/internal/model"
)

func newTestMonitor(clk *fakeClock, cam *fakeCamera, env *fakeEnv, reporter *fakeReporter, threshold int, onTerminate func(model.SecurityEvent)) *Monitor {
	var r Reporter
	if reporter != nil {
		r = reporter
	}
	return NewMonitor(clk, cam, &fakeScreen{}, env, r, threshold, 3*time.Second, onTerminate, testLogger())
}

func activate(t *testing.T, m *Monitor) {
	t.Helper()
	require.NoError(t, m.Activate(context.Background()))
	require.Equal(t, PhaseActive, m.Phase())
}

func TestMonitorActivateRequiresCamera(t *testing.T) {
	clk := newFakeClock()
	cam := &fakeCamera{startErr: errors.New("permission denied")}
	reporter := &fakeReporter{}

	var terminated []model.SecurityEvent
	m := newTestMonitor(clk, cam, newFakeEnv(), reporter, 1, func(ev model.SecurityEvent) {
		terminated = append(terminated, ev)
	})

	err := m.Activate(context.Background())
	require.Error(t, err)

	// Camera failure is a violation, not a silent retry.
	require.Len(t, terminated, 1)
	assert.Equal(t, model.ViolationWebcamFailure, terminated[0].Type)
	require.Len(t, reporter.reported(), 1)
}

func TestMonitorClassifiesEnvironmentEvents(t *testing.T) {
	cases := []struct {
		kind EnvEventKind
		want model.ViolationType
	}{
		{EnvVisibilityHidden, model.ViolationTabSwitch},
		{EnvFullscreenLost, model.ViolationFullscreenExit},
		{EnvWindowBlur, model.ViolationWindowBlur},
		{EnvWindowResize, model.ViolationWindowResize},
		{EnvMouseLeave, model.ViolationMouseLeave},
		{EnvBlockedKey, model.ViolationDevTools},
		{EnvClipboardKey, model.ViolationCopyPaste},
		{EnvContextMenu, model.ViolationContextMenu},
		{EnvPrintScreen, model.ViolationPrintScreen},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			clk := newFakeClock()
			cam := &fakeCamera{tracks: 1}
			m := newTestMonitor(clk, cam, newFakeEnv(), nil, 10, nil)
			activate(t, m)

			m.Observe(EnvEvent{Kind: tc.kind, At: clk.Now()})

			events := m.Events()
			require.Len(t, events, 1)
			assert.Equal(t, tc.want, events[0].Type)
			assert.Equal(t, 1, events[0].Seq)
		})
	}
}

func TestMonitorThresholdTerminates(t *testing.T) {
	clk := newFakeClock()
	cam := &fakeCamera{tracks: 1}

	var terminal []model.SecurityEvent
	m := newTestMonitor(clk, cam, newFakeEnv(), nil, 3, func(ev model.SecurityEvent) {
		terminal = append(terminal, ev)
	})
	activate(t, m)

	m.Observe(EnvEvent{Kind: EnvWindowBlur})
	m.Observe(EnvEvent{Kind: EnvMouseLeave})
	assert.Empty(t, terminal)
	assert.Equal(t, PhaseActive, m.Phase())

	m.Observe(EnvEvent{Kind: EnvVisibilityHidden})
	require.Len(t, terminal, 1)
	assert.Equal(t, model.ViolationTabSwitch, terminal[0].Type)
	assert.Equal(t, 3, terminal[0].Seq)
	assert.Equal(t, PhaseViolated, m.Phase())

	// Nothing is counted once the termination path has been invoked.
	m.Observe(EnvEvent{Kind: EnvWindowBlur})
	assert.Equal(t, 3, m.ViolationCount())
	assert.Len(t, terminal, 1)
}

func TestMonitorIgnoresEventsOutsideActive(t *testing.T) {
	clk := newFakeClock()
	m := newTestMonitor(clk, &fakeCamera{tracks: 1}, newFakeEnv(), nil, 1, nil)

	// Not yet activated.
	m.Observe(EnvEvent{Kind: EnvVisibilityHidden})
	assert.Equal(t, 0, m.ViolationCount())

	activate(t, m)
	m.MarkTerminated()

	// Terminated: alt-tabbing during teardown must not count.
	m.Observe(EnvEvent{Kind: EnvVisibilityHidden})
	assert.Equal(t, 0, m.ViolationCount())
}

func TestMonitorLivenessPollDetectsStoppedWebcam(t *testing.T) {
	clk := newFakeClock()
	cam := &fakeCamera{tracks: 1}
	env := newFakeEnv()
	reporter := &fakeReporter{}

	terminated := make(chan model.SecurityEvent, 1)
	m := newTestMonitor(clk, cam, env, reporter, 1, func(ev model.SecurityEvent) {
		terminated <- ev
	})
	activate(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	require.Eventually(t, func() bool { return clk.TickerCount() > 0 },
		time.Second, time.Millisecond)

	// Healthy poll: nothing raised.
	clk.Tick()
	assert.Equal(t, 0, m.ViolationCount())

	cam.setTracks(0)
	clk.Tick()

	select {
	case ev := <-terminated:
		assert.Equal(t, model.ViolationWebcamStopped, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("liveness poll did not terminate")
	}
}

func TestMonitorRunConsumesEnvChannel(t *testing.T) {
	clk := newFakeClock()
	cam := &fakeCamera{tracks: 1}
	env := newFakeEnv()
	reporter := &fakeReporter{}

	terminated := make(chan model.SecurityEvent, 1)
	m := newTestMonitor(clk, cam, env, reporter, 1, func(ev model.SecurityEvent) {
		terminated <- ev
	})
	activate(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	env.push(EnvContextMenu)

	select {
	case ev := <-terminated:
		assert.Equal(t, model.ViolationContextMenu, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("monitor did not consume env event")
	}
	require.Len(t, reporter.reported(), 1)
}

func TestMonitorReporterFailureDoesNotBlockTermination(t *testing.T) {
	clk := newFakeClock()
	reporter := &fakeReporter{err: errors.New("stream closed")}

	var terminal []model.SecurityEvent
	m := newTestMonitor(clk, &fakeCamera{tracks: 1}, newFakeEnv(), reporter, 1, func(ev model.SecurityEvent) {
		terminal = append(terminal, ev)
	})
	activate(t, m)

	m.Observe(EnvEvent{Kind: EnvPrintScreen})
	assert.Len(t, terminal, 1)
}
