package domain

import dErrors "assent/pkg/domain-errors"

// Mode selects how the client resolves consent state.
// This is a domain primitive that enforces validity at parse time.
//
// Usage: construct via ParseMode at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Mode string

const (
	// ModeOffline resolves consent entirely from local storage. This is the
	// only mode the client currently implements.
	ModeOffline Mode = "offline"

	// ModeHosted is recognized so configurations written for a hosted
	// deployment parse cleanly, but it is not implemented here.
	ModeHosted Mode = "hosted"
)

// supportedModes is the single source of truth for modes this client can run.
var supportedModes = map[Mode]bool{
	ModeOffline: true,
}

// knownModes includes modes we recognize but do not implement.
var knownModes = map[Mode]bool{
	ModeOffline: true,
	ModeHosted:  true,
}

// ParseMode constructs a Mode from external input. An empty string resolves
// to ModeOffline, the default.
//
// Errors: CodeInvalidInput for unknown values, CodeUnsupported for modes we
// recognize but do not implement.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeOffline, nil
	}
	m := Mode(s)
	if !knownModes[m] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown mode: %q", s)
	}
	if !supportedModes[m] {
		return "", dErrors.Newf(dErrors.CodeUnsupported, "mode %q is not supported by this client", s)
	}
	return m, nil
}

// IsSupported checks if the mode is one this client implements.
func (m Mode) IsSupported() bool {
	return supportedModes[m]
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}
