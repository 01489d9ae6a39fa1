package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/model"
)

// Outcome is the synchronous result of TrySubmit. Callers must treat
// anything other than OutcomeScheduled as "already handled", not as an
// error to retry.
type Outcome int

const (
	// OutcomeScheduled means the attempt acquired the lock and the
	// actual submission was scheduled behind the debounce window.
	OutcomeScheduled Outcome = iota
	// OutcomeLocked means a submission is already in flight (or done).
	OutcomeLocked
	// OutcomeTooSoon means the attempt arrived inside the cooldown
	// window after the previous one.
	OutcomeTooSoon
)

func (o Outcome) String() string {
	switch o {
	case OutcomeScheduled:
		return "scheduled"
	case OutcomeLocked:
		return "locked"
	case OutcomeTooSoon:
		return "too_soon"
	default:
		return "unknown"
	}
}

// GuardPolicy holds the configurable submission policy knobs.
type GuardPolicy struct {
	// Cooldown rejects attempts that arrive this soon after the
	// previous accepted attempt, absorbing double-clicks before they
	// reach the lock.
	Cooldown time.Duration
	// Debounce delays the actual serialization and network call so a
	// burst of near-simultaneous triggers collapses into one POST.
	Debounce time.Duration
	// AllowRetryAfterNetworkFailure re-opens the lock when the POST
	// itself fails. Default false: a failed late-stage submission must
	// not become an unlimited-retry loophole against the attempt limit.
	AllowRetryAfterNetworkFailure bool
}

// GuardHooks surface guard outcomes to the embedding controller.
// Any hook may be nil.
type GuardHooks struct {
	// OnIncomplete fires when the completeness gate rejects the
	// submission. The lock has been re-opened; no network call was made.
	OnIncomplete func(answered, total int)
	// OnSubmitted fires after the POST succeeds.
	OnSubmitted func(reason string)
	// OnError fires when the POST fails.
	OnError func(reason string, err error)
}

// SubmissionGuard serializes all submission triggers (manual submit,
// timer expiry, violations, navigation) into at most one network call.
type SubmissionGuard struct {
	mu          sync.Mutex
	locked      bool
	lastAttempt time.Time
	pending     Task

	clock  Clock
	policy GuardPolicy
	api    API
	test   *model.TestDefinition
	store  *AnswerStore
	hooks  GuardHooks
	log    zerolog.Logger
}

// NewSubmissionGuard creates an unlocked guard for one session.
func NewSubmissionGuard(clock Clock, policy GuardPolicy, api API, test *model.TestDefinition, store *AnswerStore, hooks GuardHooks, log zerolog.Logger) *SubmissionGuard {
	return &SubmissionGuard{
		clock:  clock,
		policy: policy,
		api:    api,
		test:   test,
		store:  store,
		hooks:  hooks,
		log:    log.With().Str("component", "submission_guard").Logger(),
	}
}

// TrySubmit runs the synchronous part of the submission path: lock
// check, cooldown check, debounce schedule — in that order, so two
// triggers racing each other are resolved by whichever reaches the lock
// first. The serialization and POST happen after the debounce window.
func (g *SubmissionGuard) TrySubmit(ctx context.Context, reason string) Outcome {
	g.mu.Lock()

	if g.locked {
		g.mu.Unlock()
		g.log.Debug().Str("reason", reason).Msg("Submission already in progress")
		return OutcomeLocked
	}

	now := g.clock.Now()
	if !g.lastAttempt.IsZero() && now.Sub(g.lastAttempt) < g.policy.Cooldown {
		g.mu.Unlock()
		g.log.Debug().Str("reason", reason).Msg("Submission attempt inside cooldown")
		return OutcomeTooSoon
	}

	// Lock before any I/O. The lock stays held on failure: once a
	// submission has been attempted the session is closed, unless a
	// policy below explicitly re-opens it.
	g.locked = true
	g.lastAttempt = now
	g.pending = g.clock.AfterFunc(g.policy.Debounce, func() {
		g.fire(ctx, reason)
	})
	g.mu.Unlock()

	g.log.Info().Str("reason", reason).Msg("Submission scheduled")
	return OutcomeScheduled
}

// Locked reports whether the guard currently holds the lock.
func (g *SubmissionGuard) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}

// fire runs after the debounce window: per-question validation and
// coercion, completeness gate, then the POST. Once fire starts, the
// submission cannot be aborted externally.
func (g *SubmissionGuard) fire(ctx context.Context, reason string) {
	responses := buildResponses(g.test, g.store)
	total := len(g.test.Questions)

	if len(responses) != total {
		// Incompleteness re-opens the lock: it never reached the
		// network, consumed no attempt, and a permanently locked
		// session would strand the student.
		g.reopen()
		g.log.Info().
			Int("answered", len(responses)).
			Int("total", total).
			Msg("Submission blocked, unanswered questions remain")
		if g.hooks.OnIncomplete != nil {
			g.hooks.OnIncomplete(len(responses), total)
		}
		return
	}

	sub := &model.Submission{Responses: responses, Reason: reason}
	if err := g.api.SubmitTest(ctx, g.test.ID, sub); err != nil {
		if g.policy.AllowRetryAfterNetworkFailure {
			g.reopen()
		}
		g.log.Error().Err(err).Str("reason", reason).Msg("Submission POST failed")
		if g.hooks.OnError != nil {
			g.hooks.OnError(reason, err)
		}
		return
	}

	g.log.Info().Str("reason", reason).Int("responses", total).Msg("Submission accepted")
	if g.hooks.OnSubmitted != nil {
		g.hooks.OnSubmitted(reason)
	}
}

func (g *SubmissionGuard) reopen() {
	g.mu.Lock()
	g.locked = false
	g.mu.Unlock()
}
