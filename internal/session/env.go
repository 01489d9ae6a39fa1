package session

import (
	"context"
	"time"

	"github.com/preplab/proctord/internal/model"
)

// EnvEventKind enumerates raw environment observations delivered by the
// host shell (the lockdown window embedding this controller). The monitor
// classifies them into security violations.
type EnvEventKind string

const (
	// Document became hidden while the lockdown was active.
	EnvVisibilityHidden EnvEventKind = "visibility_hidden"
	// Fullscreen element became null while fullscreen was expected,
	// including changes made outside our control (OS-level Escape).
	EnvFullscreenLost EnvEventKind = "fullscreen_lost"
	// Window lost focus.
	EnvWindowBlur EnvEventKind = "window_blur"
	// Window resized while the fullscreen element is absent.
	EnvWindowResize EnvEventKind = "window_resize"
	// Pointer left the viewport through the top or either side edge.
	EnvMouseLeave EnvEventKind = "mouse_leave"
	// Devtools toggle, view-source, save-page, refresh, tab-cycling,
	// or escape-while-fullscreen.
	EnvBlockedKey EnvEventKind = "blocked_key"
	// Copy/cut/paste/select-all/save shortcut.
	EnvClipboardKey EnvEventKind = "clipboard_key"
	// Context-menu (right-click) request.
	EnvContextMenu EnvEventKind = "context_menu"
	// Print-screen key.
	EnvPrintScreen EnvEventKind = "print_screen"
)

// EnvEvent is one raw observation from the environment.
type EnvEvent struct {
	Kind EnvEventKind
	At   time.Time
}

// EnvironmentSource delivers environment events. Implementations own the
// underlying listener registration; closing the source must tear down
// every registration it made.
type EnvironmentSource interface {
	Events() <-chan EnvEvent
	Close() error
}

// Camera owns the webcam stream for the session. It must be stopped on
// teardown, on violation-triggered termination, and before a restart,
// or the next attempt fails with a camera-in-use error.
type Camera interface {
	// Start acquires the stream and blocks until at least one playable
	// frame is delivered or ctx expires.
	Start(ctx context.Context) error
	// LiveTracks reports the number of active video tracks. Zero while
	// the session is active is a webcam_stopped violation.
	LiveTracks() int
	Stop()
}

// Screen controls the shared, singleton fullscreen resource.
type Screen interface {
	EnterFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
}

// Reporter streams security events to the proctoring backend as they are
// classified. Reporting is best-effort: a failed report never blocks the
// termination path.
type Reporter interface {
	ReportViolation(ev model.SecurityEvent) error
}

// AutosaveSink receives every answer-store write so the host can persist
// in-progress answers. Best-effort.
type AutosaveSink interface {
	Autosave(questionID string, value model.AnswerValue) error
}

// API is the backend surface the controller consumes.
type API interface {
	FetchTest(ctx context.Context, testID string) (*model.TestDefinition, error)
	FetchIdentity(ctx context.Context) (*model.Identity, error)
	SubmitTest(ctx context.Context, testID string, sub *model.Submission) error
}
