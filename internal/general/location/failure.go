package location

import (
	"errors"
	"fmt"
)

// FailureKind classifies why no position could be obtained.
type FailureKind string

const (
	Unsupported      FailureKind = "unsupported"
	InsecureContext  FailureKind = "insecure_context"
	PermissionDenied FailureKind = "permission_denied"
	Unavailable      FailureKind = "unavailable"
	Timeout          FailureKind = "timeout"
)

var messages = map[FailureKind]string{
	Unsupported:      "Geolocation not supported by this device.",
	InsecureContext:  "Location requires HTTPS. Use https:// in the URL (not http://).",
	PermissionDenied: `Location permission denied. Tap "Allow" when asked, or enable it in settings.`,
	Unavailable:      "Could not get your position. Check that GPS/Location is turned on.",
	Timeout:          "Location request timed out. Try again.",
}

// Message is the text shown to the user for kind.
func (kind FailureKind) Message() string {
	if m, ok := messages[kind]; ok {
		return m
	}
	return "Could not get location."
}

func (kind FailureKind) String() string { return string(kind) }

// Failure is the error every provider call resolves to when it has no fix.
type Failure struct {
	Kind  FailureKind
	Cause error
}

func fail(kind FailureKind, cause error) *Failure {
	return &Failure{Kind: kind, Cause: cause}
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("location %s: %v", f.Kind, f.Cause)
	}
	return "location " + f.Kind.String()
}

func (f *Failure) Unwrap() error { return f.Cause }

// Message is the user-facing text.
func (f *Failure) Message() string { return f.Kind.Message() }

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
