// Package session implements the proctored exam session controller: it
// bootstraps a test attempt, enforces lockdown conditions through the
// Monitor, tracks answers, and serializes every submission trigger
// (manual, timer expiry, violation, exit) into at most one POST through
// the SubmissionGuard.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/model"
	"github.com/preplab/proctord/internal/watermark"
)

// Bootstrap failure classes. All of them are fail-closed: the caller
// must redirect away from the attempt screen, never retry silently.
var (
	ErrInvalidTest       = errors.New("test identifier missing or invalid")
	ErrNotStarted        = errors.New("test has not started yet")
	ErrAttemptsExhausted = errors.New("no attempts remaining")
	ErrMalformedTest     = errors.New("test payload is malformed")
	ErrNotBootstrapped   = errors.New("session is not bootstrapped")
)

// Config holds the controller's policy knobs. Zero values are replaced
// by DefaultConfig's.
type Config struct {
	ViolationThreshold            int
	SubmitCooldown                time.Duration
	SubmitDebounce                time.Duration
	LivenessPollInterval          time.Duration
	AllowRetryAfterNetworkFailure bool
}

// DefaultConfig returns the reference policy: terminate on the first
// violation, 2s submission cooldown, 500ms debounce, 3s liveness poll,
// and no retry after a failed late-stage POST.
func DefaultConfig() Config {
	return Config{
		ViolationThreshold:            1,
		SubmitCooldown:                2 * time.Second,
		SubmitDebounce:                500 * time.Millisecond,
		LivenessPollInterval:          3 * time.Second,
		AllowRetryAfterNetworkFailure: false,
	}
}

// Hooks is the controller's outward surface toward the host UI.
// Any hook may be nil.
type Hooks struct {
	// OnTick fires every second with the remaining time.
	OnTick func(remainingSeconds int)
	// OnViolation fires for every classified security event.
	OnViolation func(ev model.SecurityEvent)
	// OnIncomplete fires when the completeness gate blocks a submission.
	OnIncomplete func(answered, total int)
	// OnFinished fires once when the session reaches its terminal state
	// after a successful submission; the host navigates to results.
	OnFinished func(reason string)
	// OnError fires when a submission POST fails.
	OnError func(reason string, err error)
}

// Controller owns all session state for the lifetime of one attempt.
type Controller struct {
	cfg   Config
	api   API
	clock Clock
	log   zerolog.Logger

	cam      Camera
	screen   Screen
	env      EnvironmentSource
	reporter Reporter
	sink     AutosaveSink
	hooks    Hooks

	mu       sync.Mutex
	test     *model.TestDefinition
	identity *model.Identity
	wmark    string
	store    *AnswerStore
	guard    *SubmissionGuard
	timer    *Countdown
	monitor  *Monitor
	cancel   context.CancelFunc
	finished bool

	watermarks *watermark.Cache
}

// Deps groups the controller's collaborators. Reporter and Sink are
// optional; everything else is required.
type Deps struct {
	API      API
	Clock    Clock
	Camera   Camera
	Screen   Screen
	Env      EnvironmentSource
	Reporter Reporter
	Sink     AutosaveSink
}

// New creates a controller. Call Bootstrap before anything else.
func New(cfg Config, deps Deps, hooks Hooks, log zerolog.Logger) *Controller {
	def := DefaultConfig()
	if cfg.ViolationThreshold == 0 {
		cfg.ViolationThreshold = def.ViolationThreshold
	}
	if cfg.SubmitCooldown == 0 {
		cfg.SubmitCooldown = def.SubmitCooldown
	}
	if cfg.SubmitDebounce == 0 {
		cfg.SubmitDebounce = def.SubmitDebounce
	}
	if cfg.LivenessPollInterval == 0 {
		cfg.LivenessPollInterval = def.LivenessPollInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &Controller{
		cfg:        cfg,
		api:        deps.API,
		clock:      clock,
		cam:        deps.Camera,
		screen:     deps.Screen,
		env:        deps.Env,
		reporter:   deps.Reporter,
		sink:       deps.Sink,
		hooks:      hooks,
		log:        log.With().Str("component", "session_controller").Logger(),
		watermarks: watermark.NewCache(),
	}
}

// Bootstrap loads the test definition and the caller's identity, checks
// eligibility, and initializes the session state. Every failure leaves
// no partial state live.
func (c *Controller) Bootstrap(ctx context.Context, testID string) error {
	if testID == "" {
		return ErrInvalidTest
	}

	test, err := c.api.FetchTest(ctx, testID)
	if err != nil {
		return fmt.Errorf("fetch test: %w", err)
	}
	if test.Title == "" || len(test.Questions) == 0 {
		return ErrMalformedTest
	}
	now := c.clock.Now()
	if now.Before(test.StartDate) {
		return ErrNotStarted
	}
	if test.RemainingAttempts <= 0 {
		return ErrAttemptsExhausted
	}

	identity, err := c.api.FetchIdentity(ctx)
	if err != nil {
		return fmt.Errorf("fetch identity: %w", err)
	}

	wm, err := c.watermarks.Get(identity.Email, now)
	if err != nil {
		// Watermark is presentational; a render failure must not block
		// the attempt.
		c.log.Warn().Err(err).Msg("Watermark render failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.test = test
	c.identity = identity
	c.wmark = wm
	c.store = NewAnswerStore(c.sink, c.log)
	c.guard = NewSubmissionGuard(
		c.clock,
		GuardPolicy{
			Cooldown:                      c.cfg.SubmitCooldown,
			Debounce:                      c.cfg.SubmitDebounce,
			AllowRetryAfterNetworkFailure: c.cfg.AllowRetryAfterNetworkFailure,
		},
		c.api,
		test,
		c.store,
		GuardHooks{
			OnIncomplete: c.hooks.OnIncomplete,
			OnSubmitted:  c.finalize,
			OnError:      c.submitFailed,
		},
		c.log,
	)
	c.timer = NewCountdown(c.clock, test.DurationInMinutes*60, c.hooks.OnTick, c.timeUp)
	c.monitor = NewMonitor(
		c.clock, c.cam, c.screen, c.env, c.reporter,
		c.cfg.ViolationThreshold, c.cfg.LivenessPollInterval,
		c.violationTerminate, c.log,
	)

	c.log.Info().
		Str("test_id", test.ID).
		Int("questions", len(test.Questions)).
		Int("duration_min", test.DurationInMinutes).
		Msg("Session bootstrapped")
	return nil
}

// Start activates the lockdown (fullscreen + webcam) and launches the
// monitor loop and the countdown. ctx bounds only the activation
// handshake; the loops run on a context the controller owns, cancelled
// by Close or by termination, so callers may cancel ctx the moment
// Start returns without killing the session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.test == nil {
		c.mu.Unlock()
		return ErrNotBootstrapped
	}
	monitor, timer := c.monitor, c.timer
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	if err := monitor.Activate(ctx); err != nil {
		cancel()
		return fmt.Errorf("activate lockdown: %w", err)
	}

	go monitor.Run(runCtx)
	go timer.Run(runCtx)
	return nil
}

// RecordAnswer overwrites the stored answer for a question. Unknown
// question ids are dropped: an Answer must reference an existing question.
func (c *Controller) RecordAnswer(questionID string, value model.AnswerValue) {
	c.mu.Lock()
	test, store := c.test, c.store
	c.mu.Unlock()

	if test == nil || store == nil {
		return
	}
	if test.QuestionByID(questionID) == nil {
		c.log.Warn().Str("question_id", questionID).Msg("Dropping answer for unknown question")
		return
	}
	store.Record(questionID, value)
}

// Answer returns the currently recorded answer for a question.
func (c *Controller) Answer(questionID string) (model.AnswerValue, bool) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return model.AnswerValue{}, false
	}
	return store.Get(questionID)
}

// Submit is the manual submission trigger.
func (c *Controller) Submit(ctx context.Context) Outcome {
	return c.trySubmit(ctx, model.ReasonSubmit)
}

// Exit submits with the exit reason (student abandons the attempt).
func (c *Controller) Exit(ctx context.Context) Outcome {
	return c.trySubmit(ctx, model.ReasonExit)
}

// Watermark returns the cached tamper-evidence overlay image.
func (c *Controller) Watermark() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wmark
}

// Phase returns the lockdown phase, or PhaseNotActive before Start.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()
	if monitor == nil {
		return PhaseNotActive
	}
	return monitor.Phase()
}

// Remaining returns the countdown's remaining seconds.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	timer := c.timer
	c.mu.Unlock()
	if timer == nil {
		return 0
	}
	return timer.Remaining()
}

// Close tears the session down: stops the countdown, the monitor loop,
// the liveness poll, and the webcam. Safe to call at any point and more
// than once; it never triggers a submission.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel, timer := c.cancel, c.timer
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if timer != nil {
		timer.Stop()
	}
	if c.env != nil {
		_ = c.env.Close()
	}
	if c.cam != nil {
		c.cam.Stop()
	}
}

func (c *Controller) trySubmit(ctx context.Context, reason string) Outcome {
	c.mu.Lock()
	guard := c.guard
	c.mu.Unlock()
	if guard == nil {
		return OutcomeLocked
	}
	return guard.TrySubmit(ctx, reason)
}

// timeUp is the countdown's terminal callback.
func (c *Controller) timeUp() {
	c.log.Info().Msg("Time expired")
	c.trySubmit(context.Background(), model.ReasonTimeUp)
}

// violationTerminate is the monitor's termination callback: it funnels
// the violation into the submission guard. The guard's lock keeps this
// idempotent against violations racing other triggers.
func (c *Controller) violationTerminate(ev model.SecurityEvent) {
	if c.hooks.OnViolation != nil {
		c.hooks.OnViolation(ev)
	}
	c.trySubmit(context.Background(), model.ViolationReason(ev.Type))
}

// finalize is the post-success termination sequence: stop the camera,
// exit fullscreen, stop the clocks, then hand control back to the host.
// Each step runs regardless of the previous one failing.
func (c *Controller) finalize(reason string) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	monitor, timer, cancel := c.monitor, c.timer, c.cancel
	c.mu.Unlock()

	if c.cam != nil {
		c.cam.Stop()
	}
	if c.screen != nil {
		if err := c.screen.ExitFullscreen(context.Background()); err != nil {
			c.log.Warn().Err(err).Msg("Fullscreen exit failed")
		}
	}
	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if monitor != nil {
		monitor.MarkTerminated()
	}

	c.log.Info().Str("reason", reason).Msg("Session terminated")
	if c.hooks.OnFinished != nil {
		c.hooks.OnFinished(reason)
	}
}

func (c *Controller) submitFailed(reason string, err error) {
	if c.hooks.OnError != nil {
		c.hooks.OnError(reason, err)
	}
}
