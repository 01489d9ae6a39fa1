package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preplab/proctord/internal/model"
)

type controllerFixture struct {
	clk      *fakeClock
	api      *fakeAPI
	cam      *fakeCamera
	screen   *fakeScreen
	env      *fakeEnv
	reporter *fakeReporter
	sink     *fakeSink
	finished chan string
	ctrl     *Controller
}

func newControllerFixture(t *testing.T, cfg Config, mutate func(*fakeAPI)) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		clk:      newFakeClock(),
		api:      &fakeAPI{},
		cam:      &fakeCamera{tracks: 1},
		screen:   &fakeScreen{},
		env:      newFakeEnv(),
		reporter: &fakeReporter{},
		sink:     newFakeSink(),
		finished: make(chan string, 1),
	}
	f.api.test = threeQuestionTest(f.clk.Now().Add(-time.Minute))
	if mutate != nil {
		mutate(f.api)
	}

	f.ctrl = New(cfg, Deps{
		API:      f.api,
		Clock:    f.clk,
		Camera:   f.cam,
		Screen:   f.screen,
		Env:      f.env,
		Reporter: f.reporter,
		Sink:     f.sink,
	}, Hooks{
		OnFinished: func(reason string) { f.finished <- reason },
	}, testLogger())
	return f
}

func (f *controllerFixture) bootstrapAndStart(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.Bootstrap(context.Background(), "t-1"))
	require.NoError(t, f.ctrl.Start(context.Background()))
}

func (f *controllerFixture) answerEverything() {
	f.ctrl.RecordAnswer("q-1", model.Scalar("b"))
	f.ctrl.RecordAnswer("q-2", model.List("a", "c"))
	f.ctrl.RecordAnswer("q-3", model.Scalar("because"))
}

func (f *controllerFixture) waitFinished(t *testing.T) string {
	t.Helper()
	select {
	case reason := <-f.finished:
		return reason
	case <-time.After(time.Second):
		t.Fatal("session did not finish")
		return ""
	}
}

func TestControllerBootstrapFailClosed(t *testing.T) {
	t.Run("empty test id", func(t *testing.T) {
		f := newControllerFixture(t, DefaultConfig(), nil)
		assert.ErrorIs(t, f.ctrl.Bootstrap(context.Background(), ""), ErrInvalidTest)
	})

	t.Run("not started yet", func(t *testing.T) {
		f := newControllerFixture(t, DefaultConfig(), func(api *fakeAPI) {
			api.test.StartDate = time.Now().Add(time.Hour)
		})
		assert.ErrorIs(t, f.ctrl.Bootstrap(context.Background(), "t-1"), ErrNotStarted)
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		f := newControllerFixture(t, DefaultConfig(), func(api *fakeAPI) {
			api.test.RemainingAttempts = 0
		})
		assert.ErrorIs(t, f.ctrl.Bootstrap(context.Background(), "t-1"), ErrAttemptsExhausted)
	})

	t.Run("malformed payload", func(t *testing.T) {
		f := newControllerFixture(t, DefaultConfig(), func(api *fakeAPI) {
			api.test.Questions = nil
		})
		assert.ErrorIs(t, f.ctrl.Bootstrap(context.Background(), "t-1"), ErrMalformedTest)
	})
}

func TestControllerManualSubmitFlow(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig(), nil)
	f.bootstrapAndStart(t)
	f.answerEverything()

	assert.Equal(t, OutcomeScheduled, f.ctrl.Submit(context.Background()))
	f.clk.Advance(time.Second)

	assert.Equal(t, "submit", f.waitFinished(t))

	subs := f.api.submitted()
	require.Len(t, subs, 1)
	assert.Equal(t, model.ReasonSubmit, subs[0].Reason)
	require.Len(t, subs[0].Responses, 3)

	// Teardown: camera stopped, fullscreen exited, monitor terminated.
	assert.GreaterOrEqual(t, f.cam.stopCount(), 1)
	assert.Equal(t, 1, f.screen.exitCount())
	assert.Equal(t, PhaseTerminated, f.ctrl.Phase())
}

func TestControllerViolationTerminatesAndSubmits(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig(), nil)
	f.bootstrapAndStart(t)
	f.answerEverything()

	f.env.push(EnvVisibilityHidden)

	// The monitor goroutine schedules the guarded submission; fire it.
	require.Eventually(t, func() bool {
		f.clk.Advance(time.Second)
		return len(f.api.submitted()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "security_violation_tab_switch", f.waitFinished(t))
	assert.Equal(t, "security_violation_tab_switch", f.api.submitted()[0].Reason)
	require.Len(t, f.reporter.reported(), 1)
}

// The Start context bounds only the activation handshake. Hosts cancel
// it as soon as Start returns; the monitor and countdown must survive.
func TestControllerStartContextCancelledAfterReturn(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig(), nil)
	require.NoError(t, f.ctrl.Bootstrap(context.Background(), "t-1"))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	require.NoError(t, f.ctrl.Start(startCtx))
	startCancel()
	f.answerEverything()

	f.env.push(EnvVisibilityHidden)

	require.Eventually(t, func() bool {
		f.clk.Advance(time.Second)
		return len(f.api.submitted()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "security_violation_tab_switch", f.waitFinished(t))
	require.Len(t, f.reporter.reported(), 1)
	assert.Equal(t, PhaseTerminated, f.ctrl.Phase())
}

func TestControllerDropsAnswersForUnknownQuestions(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig(), nil)
	require.NoError(t, f.ctrl.Bootstrap(context.Background(), "t-1"))

	f.ctrl.RecordAnswer("q-404", model.Scalar("x"))
	_, ok := f.ctrl.Answer("q-404")
	assert.False(t, ok)

	f.ctrl.RecordAnswer("q-1", model.Scalar("b"))
	got, ok := f.ctrl.Answer("q-1")
	require.True(t, ok)
	assert.Equal(t, "b", got.Single())

	// Every record reaches the autosave sink.
	_, saved := f.sink.get("q-1")
	assert.True(t, saved)
}

func TestControllerWatermarkIsDataURI(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig(), nil)
	require.NoError(t, f.ctrl.Bootstrap(context.Background(), "t-1"))

	wm := f.ctrl.Watermark()
	assert.True(t, strings.HasPrefix(wm, "data:image/png;base64,"), "got %q", wm[:min(len(wm), 40)])
}

func TestControllerCloseNeverSubmits(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig(), nil)
	f.bootstrapAndStart(t)
	f.answerEverything()

	f.ctrl.Close()
	f.clk.Advance(5 * time.Second)

	assert.Empty(t, f.api.submitted())
	assert.GreaterOrEqual(t, f.cam.stopCount(), 1)

	select {
	case reason := <-f.finished:
		t.Fatalf("close finished the session: %s", reason)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestControllerTimeUpSubmits(t *testing.T) {
	cfg := DefaultConfig()
	f := newControllerFixture(t, cfg, func(api *fakeAPI) {
		api.test.DurationInMinutes = 1
	})
	f.bootstrapAndStart(t)
	f.answerEverything()

	require.Eventually(t, func() bool { return f.clk.TickerCount() >= 2 },
		time.Second, time.Millisecond)

	// Drive the countdown to zero. Ticks may be dropped when the timer
	// goroutine lags, so keep ticking until it reports empty.
	require.Eventually(t, func() bool {
		f.clk.Tick()
		return f.ctrl.Remaining() <= 0
	}, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		f.clk.Advance(time.Second)
		return len(f.api.submitted()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "time_up", f.waitFinished(t))
	assert.Equal(t, model.ReasonTimeUp, f.api.submitted()[0].Reason)
}

func TestControllerSubmitBeforeBootstrap(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig(), nil)
	assert.Equal(t, OutcomeLocked, f.ctrl.Submit(context.Background()))
	assert.ErrorIs(t, f.ctrl.Start(context.Background()), ErrNotBootstrapped)
}
