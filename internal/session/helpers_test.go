package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/model"
)

// fakeClock is a manually advanced clock. Advance moves time forward and
// runs due AfterFunc callbacks synchronously in the caller's goroutine,
// which keeps the guard's debounce path deterministic. Tick delivers one
// tick to every live ticker.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tasks   []*fakeTask
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := &fakeTask{deadline: c.now.Add(d), f: f}
	c.tasks = append(c.tasks, task)
	return task
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticker := &fakeTicker{ch: make(chan time.Time, 16)}
	c.tickers = append(c.tickers, ticker)
	return ticker
}

// Advance moves the clock and fires every due, uncancelled task.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*fakeTask
	for _, task := range c.tasks {
		if !task.done && !task.deadline.After(now) {
			task.done = true
			due = append(due, task)
		}
	}
	c.mu.Unlock()

	for _, task := range due {
		task.f()
	}
}

// Tick delivers one tick to every ticker created so far.
func (c *fakeClock) Tick() {
	c.mu.Lock()
	now := c.now
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, ticker := range tickers {
		ticker.deliver(now)
	}
}

// TickerCount reports how many tickers were created, so tests can wait
// for a goroutine to reach its ticker loop before ticking.
func (c *fakeClock) TickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type fakeTask struct {
	deadline time.Time
	f        func()
	done     bool
}

func (t *fakeTask) Stop() bool {
	fired := t.done
	t.done = true
	return !fired
}

type fakeTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) deliver(now time.Time) {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
}

// ─── Collaborator fakes ─────────────────────────────────────────────

type fakeAPI struct {
	mu          sync.Mutex
	test        *model.TestDefinition
	identity    *model.Identity
	fetchErr    error
	submitErr   error
	submissions []*model.Submission
}

func (a *fakeAPI) FetchTest(ctx context.Context, testID string) (*model.TestDefinition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.test, nil
}

func (a *fakeAPI) FetchIdentity(ctx context.Context) (*model.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.identity == nil {
		return &model.Identity{Email: "student@example.com", Name: "Student"}, nil
	}
	return a.identity, nil
}

func (a *fakeAPI) SubmitTest(ctx context.Context, testID string, sub *model.Submission) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.submitErr != nil {
		return a.submitErr
	}
	a.submissions = append(a.submissions, sub)
	return nil
}

func (a *fakeAPI) submitted() []*model.Submission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*model.Submission(nil), a.submissions...)
}

type fakeCamera struct {
	mu       sync.Mutex
	startErr error
	tracks   int
	stops    int
}

func (c *fakeCamera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startErr
}

func (c *fakeCamera) LiveTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracks
}

func (c *fakeCamera) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
}

func (c *fakeCamera) setTracks(n int) {
	c.mu.Lock()
	c.tracks = n
	c.mu.Unlock()
}

func (c *fakeCamera) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

type fakeScreen struct {
	mu       sync.Mutex
	enterErr error
	entered  int
	exited   int
}

func (s *fakeScreen) EnterFullscreen(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enterErr != nil {
		return s.enterErr
	}
	s.entered++
	return nil
}

func (s *fakeScreen) ExitFullscreen(context.Context) error {
	s.mu.Lock()
	s.exited++
	s.mu.Unlock()
	return nil
}

func (s *fakeScreen) exitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

type fakeEnv struct {
	ch   chan EnvEvent
	once sync.Once
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{ch: make(chan EnvEvent, 16)}
}

func (e *fakeEnv) Events() <-chan EnvEvent { return e.ch }

func (e *fakeEnv) Close() error {
	e.once.Do(func() { close(e.ch) })
	return nil
}

func (e *fakeEnv) push(kind EnvEventKind) {
	e.ch <- EnvEvent{Kind: kind, At: time.Now()}
}

type fakeReporter struct {
	mu     sync.Mutex
	err    error
	events []model.SecurityEvent
}

func (r *fakeReporter) ReportViolation(ev model.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeReporter) reported() []model.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SecurityEvent(nil), r.events...)
}

type fakeSink struct {
	mu    sync.Mutex
	saved map[string]model.AnswerValue
}

func newFakeSink() *fakeSink {
	return &fakeSink{saved: make(map[string]model.AnswerValue)}
}

func (s *fakeSink) Autosave(questionID string, value model.AnswerValue) error {
	s.mu.Lock()
	s.saved[questionID] = value
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) get(questionID string) (model.AnswerValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.saved[questionID]
	return v, ok
}

// ─── Fixtures ───────────────────────────────────────────────────────

// threeQuestionTest builds a definition with one single-correct MCQ, one
// multi-correct MCQ, and one free-text question.
func threeQuestionTest(start time.Time) *model.TestDefinition {
	return &model.TestDefinition{
		ID:                "t-1",
		Title:             "Algebra Midterm",
		DurationInMinutes: 30,
		StartDate:         start,
		MaxAttempts:       2,
		RemainingAttempts: 2,
		Questions: []model.Question{
			{
				ID: "q-1", Type: model.QuestionTypeMCQ, Prompt: "2+2?", Marks: 1,
				Options: []model.Option{
					{ID: "a", Text: "3"},
					{ID: "b", Text: "4", IsCorrect: true},
				},
			},
			{
				ID: "q-2", Type: model.QuestionTypeMCQ, Prompt: "Even numbers?", Marks: 2,
				Options: []model.Option{
					{ID: "a", Text: "2", IsCorrect: true},
					{ID: "b", Text: "3"},
					{ID: "c", Text: "4", IsCorrect: true},
				},
			},
			{ID: "q-3", Type: model.QuestionTypeDescriptive, Prompt: "Explain.", Marks: 2},
		},
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
