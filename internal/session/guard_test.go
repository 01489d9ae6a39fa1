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

func testPolicy() GuardPolicy {
	return GuardPolicy{
		Cooldown: 2 * time.Second,
		Debounce: 500 * time.Millisecond,
	}
}

// fullStore returns a store with every question of test answered.
func fullStore(test *model.TestDefinition) *AnswerStore {
	store := NewAnswerStore(nil, testLogger())
	store.Record("q-1", model.Scalar("b"))
	store.Record("q-2", model.List("a", "c"))
	store.Record("q-3", model.Scalar("because"))
	return store
}

func TestGuardSubmitsAtMostOnce(t *testing.T) {
	clk := newFakeClock()
	api := &fakeAPI{}
	test := threeQuestionTest(clk.Now())
	g := NewSubmissionGuard(clk, testPolicy(), api, test, fullStore(test), GuardHooks{}, testLogger())

	ctx := context.Background()
	assert.Equal(t, OutcomeScheduled, g.TrySubmit(ctx, model.ReasonSubmit))
	// Racing triggers hit the lock, not the cooldown.
	assert.Equal(t, OutcomeLocked, g.TrySubmit(ctx, model.ReasonTimeUp))
	assert.Equal(t, OutcomeLocked, g.TrySubmit(ctx, model.ViolationReason(model.ViolationTabSwitch)))

	clk.Advance(time.Second)

	subs := api.submitted()
	require.Len(t, subs, 1)
	assert.Equal(t, model.ReasonSubmit, subs[0].Reason)
	assert.True(t, g.Locked())

	// The lock stays held after success.
	assert.Equal(t, OutcomeLocked, g.TrySubmit(ctx, model.ReasonSubmit))
}

func TestGuardCooldownAbsorbsDoubleClick(t *testing.T) {
	clk := newFakeClock()
	api := &fakeAPI{}
	test := threeQuestionTest(clk.Now())
	// One question unanswered so the first attempt re-opens the lock.
	store := NewAnswerStore(nil, testLogger())
	store.Record("q-1", model.Scalar("b"))
	g := NewSubmissionGuard(clk, testPolicy(), api, test, store, GuardHooks{}, testLogger())

	ctx := context.Background()
	assert.Equal(t, OutcomeScheduled, g.TrySubmit(ctx, model.ReasonSubmit))
	clk.Advance(600 * time.Millisecond)
	assert.False(t, g.Locked())

	// Re-opened, but the second click lands inside the cooldown window.
	assert.Equal(t, OutcomeTooSoon, g.TrySubmit(ctx, model.ReasonSubmit))

	// After the cooldown a fresh attempt is accepted.
	clk.Advance(2 * time.Second)
	assert.Equal(t, OutcomeScheduled, g.TrySubmit(ctx, model.ReasonSubmit))
}

func TestGuardIncompleteReopensWithoutNetworkCall(t *testing.T) {
	clk := newFakeClock()
	api := &fakeAPI{}
	test := threeQuestionTest(clk.Now())
	store := NewAnswerStore(nil, testLogger())
	store.Record("q-1", model.Scalar("b"))
	store.Record("q-2", model.List("a"))

	var gotAnswered, gotTotal int
	g := NewSubmissionGuard(clk, testPolicy(), api, test, store, GuardHooks{
		OnIncomplete: func(answered, total int) { gotAnswered, gotTotal = answered, total },
	}, testLogger())

	g.TrySubmit(context.Background(), model.ReasonSubmit)
	clk.Advance(time.Second)

	assert.Empty(t, api.submitted())
	assert.False(t, g.Locked())
	assert.Equal(t, 2, gotAnswered)
	assert.Equal(t, 3, gotTotal)
}

func TestGuardNetworkFailureKeepsLockByDefault(t *testing.T) {
	clk := newFakeClock()
	api := &fakeAPI{submitErr: errors.New("connection refused")}
	test := threeQuestionTest(clk.Now())

	var gotErr error
	g := NewSubmissionGuard(clk, testPolicy(), api, test, fullStore(test), GuardHooks{
		OnError: func(reason string, err error) { gotErr = err },
	}, testLogger())

	g.TrySubmit(context.Background(), model.ReasonSubmit)
	clk.Advance(time.Second)

	// A failed POST must not become a retry loophole.
	assert.True(t, g.Locked())
	require.Error(t, gotErr)
	assert.Equal(t, OutcomeLocked, g.TrySubmit(context.Background(), model.ReasonSubmit))
}

func TestGuardNetworkFailureReopensWhenPolicyAllows(t *testing.T) {
	clk := newFakeClock()
	api := &fakeAPI{submitErr: errors.New("connection refused")}
	test := threeQuestionTest(clk.Now())

	policy := testPolicy()
	policy.AllowRetryAfterNetworkFailure = true
	g := NewSubmissionGuard(clk, policy, api, test, fullStore(test), GuardHooks{}, testLogger())

	g.TrySubmit(context.Background(), model.ReasonSubmit)
	clk.Advance(time.Second)
	assert.False(t, g.Locked())

	// Retry succeeds once the network is back.
	api.mu.Lock()
	api.submitErr = nil
	api.mu.Unlock()

	clk.Advance(2 * time.Second)
	require.Equal(t, OutcomeScheduled, g.TrySubmit(context.Background(), model.ReasonSubmit))
	clk.Advance(time.Second)
	assert.Len(t, api.submitted(), 1)
}

func TestGuardSubmittedHookCarriesReason(t *testing.T) {
	clk := newFakeClock()
	api := &fakeAPI{}
	test := threeQuestionTest(clk.Now())

	var gotReason string
	g := NewSubmissionGuard(clk, testPolicy(), api, test, fullStore(test), GuardHooks{
		OnSubmitted: func(reason string) { gotReason = reason },
	}, testLogger())

	g.TrySubmit(context.Background(), model.ViolationReason(model.ViolationFullscreenExit))
	clk.Advance(time.Second)

	assert.Equal(t, "security_violation_fullscreen_exit", gotReason)
}
