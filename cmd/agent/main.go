// Command agent hosts the proctored session controller inside a kiosk
// shell. The shell talks to the agent over stdio: newline-delimited JSON
// messages carry raw environment observations and student actions in,
// and UI state updates out. The agent owns all session policy; the shell
// stays a dumb terminal.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/client"
	"github.com/preplab/proctord/internal/config"
	"github.com/preplab/proctord/internal/logger"
	"github.com/preplab/proctord/internal/model"
	"github.com/preplab/proctord/internal/session"
)

// inboundMsg is one stdin line from the shell.
type inboundMsg struct {
	Type string `json:"type"`

	// type=env
	Kind string `json:"kind,omitempty"`

	// type=answer
	QID    string          `json:"q_id,omitempty"`
	Answer json.RawMessage `json:"answer,omitempty"`

	// type=camera
	Tracks int `json:"tracks,omitempty"`
}

// outboundMsg is one stdout line to the shell.
type outboundMsg struct {
	Type string `json:"type"`

	Test      *model.TestDefinition `json:"test,omitempty"`
	Watermark string                `json:"watermark,omitempty"`
	// No omitempty: the shell needs the final tick to carry remaining=0.
	Remaining int                   `json:"remaining"`
	Violation string                `json:"violation,omitempty"`
	Seq       int                   `json:"seq,omitempty"`
	Answered  int                   `json:"answered,omitempty"`
	Total     int                   `json:"total,omitempty"`
	Reason    string                `json:"reason,omitempty"`
	Error     string                `json:"error,omitempty"`
	Enter     bool                  `json:"enter,omitempty"`
}

// emitter serializes stdout writes; hooks fire from multiple goroutines.
type emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newEmitter() *emitter {
	return &emitter{enc: json.NewEncoder(os.Stdout)}
}

func (e *emitter) send(msg outboundMsg) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enc.Encode(msg)
}

// shellEnv feeds environment observations from stdin into the monitor.
type shellEnv struct {
	ch   chan session.EnvEvent
	once sync.Once
}

func newShellEnv() *shellEnv {
	return &shellEnv{ch: make(chan session.EnvEvent, 64)}
}

func (s *shellEnv) Events() <-chan session.EnvEvent { return s.ch }

func (s *shellEnv) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

func (s *shellEnv) push(kind session.EnvEventKind, at time.Time) {
	select {
	case s.ch <- session.EnvEvent{Kind: kind, At: at}:
	default:
		// A full buffer means the monitor is gone; drop rather than block.
	}
}

// shellCamera mirrors the shell's webcam state. The shell reports track
// counts; Start waits for the first live track.
type shellCamera struct {
	emit *emitter

	mu     sync.Mutex
	tracks int
	live   chan struct{}
}

func newShellCamera(emit *emitter) *shellCamera {
	return &shellCamera{emit: emit, live: make(chan struct{})}
}

func (c *shellCamera) Start(ctx context.Context) error {
	c.emit.send(outboundMsg{Type: "camera_start"})

	c.mu.Lock()
	if c.tracks > 0 {
		c.mu.Unlock()
		return nil
	}
	live := c.live
	c.mu.Unlock()

	select {
	case <-live:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("camera start: %w", ctx.Err())
	}
}

func (c *shellCamera) LiveTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracks
}

func (c *shellCamera) Stop() {
	c.emit.send(outboundMsg{Type: "camera_stop"})
}

func (c *shellCamera) setTracks(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracks == 0 && n > 0 {
		close(c.live)
		c.live = make(chan struct{})
	}
	c.tracks = n
}

// shellScreen forwards fullscreen transitions to the shell.
type shellScreen struct {
	emit *emitter
}

func (s *shellScreen) EnterFullscreen(context.Context) error {
	s.emit.send(outboundMsg{Type: "fullscreen", Enter: true})
	return nil
}

func (s *shellScreen) ExitFullscreen(context.Context) error {
	s.emit.send(outboundMsg{Type: "fullscreen", Enter: false})
	return nil
}

func main() {
	var (
		serverURL string
		token     string
		testID    string
		logLevel  string
	)
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "Delivery service base URL")
	flag.StringVar(&token, "token", "", "Student bearer token")
	flag.StringVar(&testID, "test", "", "Test ID to attempt")
	flag.StringVar(&logLevel, "log-level", "info", "Log level")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(logLevel, "json")

	if token == "" || testID == "" {
		log.Fatal().Msg("-token and -test are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emit := newEmitter()
	api := client.New(serverURL, token, log)

	// The proctoring stream is best-effort; a failed dial degrades to an
	// unreported session, it does not block the attempt.
	var (
		reporter session.Reporter
		sink     session.AutosaveSink
	)
	wsURL := strings.Replace(serverURL, "http", "ws", 1) +
		"/ws/v1/student/tests/" + testID + "/stream"
	stream, err := client.DialStream(ctx, wsURL, token, log)
	if err != nil {
		log.Warn().Err(err).Msg("Proctor stream unavailable")
	} else {
		defer stream.Close()
		reporter = stream
		sink = stream
	}

	env := newShellEnv()
	cam := newShellCamera(emit)
	screen := &shellScreen{emit: emit}

	done := make(chan string, 1)

	ctrl := session.New(
		session.Config{
			ViolationThreshold:            cfg.ViolationThreshold,
			SubmitCooldown:                cfg.SubmitCooldown,
			SubmitDebounce:                cfg.SubmitDebounce,
			LivenessPollInterval:          cfg.LivenessPollInterval,
			AllowRetryAfterNetworkFailure: cfg.AllowRetryAfterNetworkFailure,
		},
		session.Deps{
			API:      api,
			Camera:   cam,
			Screen:   screen,
			Env:      env,
			Reporter: reporter,
			Sink:     sink,
		},
		session.Hooks{
			OnTick: func(remaining int) {
				emit.send(outboundMsg{Type: "tick", Remaining: remaining})
			},
			OnViolation: func(ev model.SecurityEvent) {
				emit.send(outboundMsg{Type: "violation", Violation: string(ev.Type), Seq: ev.Seq})
			},
			OnIncomplete: func(answered, total int) {
				emit.send(outboundMsg{Type: "incomplete", Answered: answered, Total: total})
			},
			OnFinished: func(reason string) {
				emit.send(outboundMsg{Type: "finished", Reason: reason})
				select {
				case done <- reason:
				default:
				}
			},
			OnError: func(reason string, err error) {
				emit.send(outboundMsg{Type: "submit_error", Reason: reason, Error: err.Error()})
			},
		},
		log,
	)

	if err := ctrl.Bootstrap(ctx, testID); err != nil {
		emit.send(outboundMsg{Type: "bootstrap_error", Error: err.Error()})
		log.Fatal().Err(err).Msg("Bootstrap failed")
	}
	defer ctrl.Close()

	// Read stdin before Start: the camera handshake needs the shell's
	// track reports flowing.
	go readLoop(ctx, ctrl, env, cam, log)

	// The timeout bounds the activation handshake only; the monitor and
	// countdown loops outlive it until Close or termination.
	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	err = ctrl.Start(startCtx)
	startCancel()
	if err != nil {
		emit.send(outboundMsg{Type: "start_error", Error: err.Error()})
		log.Fatal().Err(err).Msg("Lockdown activation failed")
	}

	emit.send(outboundMsg{
		Type:      "ready",
		Watermark: ctrl.Watermark(),
		Remaining: ctrl.Remaining(),
	})

	reason := <-done
	log.Info().Str("reason", reason).Msg("Session finished")
}

// readLoop translates stdin lines into controller calls until EOF.
func readLoop(ctx context.Context, ctrl *session.Controller, env *shellEnv, cam *shellCamera, log zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg inboundMsg
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Warn().Err(err).Msg("Dropping malformed stdin line")
			continue
		}

		switch msg.Type {
		case "env":
			env.push(session.EnvEventKind(msg.Kind), time.Now())
		case "camera":
			cam.setTracks(msg.Tracks)
		case "answer":
			var value model.AnswerValue
			if err := json.Unmarshal(msg.Answer, &value); err != nil {
				log.Warn().Err(err).Str("q_id", msg.QID).Msg("Dropping malformed answer")
				continue
			}
			ctrl.RecordAnswer(msg.QID, value)
		case "submit":
			ctrl.Submit(ctx)
		case "exit":
			ctrl.Exit(ctx)
		default:
			log.Warn().Str("type", msg.Type).Msg("Unknown stdin message")
		}
	}

	// EOF: the shell went away. Abandoning the window is an exit.
	ctrl.Exit(ctx)
}
