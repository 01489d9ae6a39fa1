package model

import "time"

// ViolationType tags a detected deviation from lockdown conditions.
// The vocabulary is fixed: the tags reach both the submission reason and
// the proctor monitoring pipeline.
type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "tab_switch"
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
	ViolationWindowBlur     ViolationType = "window_blur"
	ViolationWindowResize   ViolationType = "window_resize"
	ViolationMouseLeave     ViolationType = "mouse_leave"
	ViolationDevTools       ViolationType = "dev_tools_or_shortcut"
	ViolationCopyPaste      ViolationType = "copy_paste"
	ViolationContextMenu    ViolationType = "context_menu"
	ViolationPrintScreen    ViolationType = "print_screen"
	ViolationWebcamFailure  ViolationType = "webcam_failure"
	ViolationWebcamStopped  ViolationType = "webcam_stopped"
)

// Valid reports whether v belongs to the fixed vocabulary.
func (v ViolationType) Valid() bool {
	switch v {
	case ViolationTabSwitch, ViolationFullscreenExit, ViolationWindowBlur,
		ViolationWindowResize, ViolationMouseLeave, ViolationDevTools,
		ViolationCopyPaste, ViolationContextMenu, ViolationPrintScreen,
		ViolationWebcamFailure, ViolationWebcamStopped:
		return true
	}
	return false
}

// SecurityEvent records one observed violation. Seq is the session's
// monotonically incremented violation counter, starting at 1.
type SecurityEvent struct {
	Type ViolationType `json:"type"`
	At   time.Time     `json:"at"`
	Seq  int           `json:"seq"`
}
