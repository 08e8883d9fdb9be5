package geminiwebapi

import "fmt"

// AuthReason classifies unrecoverable authentication failures.
type AuthReason int

const (
	AuthUnknown AuthReason = iota
	AuthMissingCredential
	AuthTokenExtractionFailed
	AuthSessionExpired
)

func (r AuthReason) String() string {
	switch r {
	case AuthMissingCredential:
		return "missing credential"
	case AuthTokenExtractionFailed:
		return "token extraction failed"
	case AuthSessionExpired:
		return "session expired"
	default:
		return "authentication error"
	}
}

type AuthError struct {
	Reason AuthReason
	Msg    string
}

func (e *AuthError) Error() string {
	if e.Msg == "" {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Msg)
}

// AuthExpiredError signals that the current session token/cookies were
// rejected. It is recoverable: the engine performs one refresh cycle before
// giving up with AuthError(AuthSessionExpired).
type AuthExpiredError struct {
	Status int
}

func (e *AuthExpiredError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication expired (status %d)", e.Status)
	}
	return "authentication expired"
}

// EncodingError reports a malformed outgoing payload, detected before any
// network call.
type EncodingError struct{ Msg string }

func (e *EncodingError) Error() string {
	if e.Msg == "" {
		return "encoding error"
	}
	return e.Msg
}

// ParseError reports a response that violates the positional contract.
// Stage names the decode phase so a service-format change is diagnosable.
type ParseError struct {
	Stage string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Stage == "" {
		return e.Msg
	}
	return fmt.Sprintf("parse %s: %s", e.Stage, e.Msg)
}

// NetworkError is a transport-level failure. Transient failures (timeouts,
// 5xx) may be retried; others are surfaced immediately.
type NetworkError struct {
	Msg       string
	Status    int
	Transient bool
	Err       error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ImageReason classifies image resolution failures.
type ImageReason int

const (
	ImageUnknown ImageReason = iota
	ImageMissingCredentials
	ImageDownloadFailed
	ImageWriteFailed
)

func (r ImageReason) String() string {
	switch r {
	case ImageMissingCredentials:
		return "missing credentials"
	case ImageDownloadFailed:
		return "download failed"
	case ImageWriteFailed:
		return "write failed"
	default:
		return "image error"
	}
}

type ImageError struct {
	Reason ImageReason
	Msg    string
}

func (e *ImageError) Error() string {
	if e.Msg == "" {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Msg)
}

// NotFoundError is returned when a named conversation is absent from the
// store. Callers distinguish "new conversation" from "restore failed" by it.
type NotFoundError struct{ Name string }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("conversation %q not found", e.Name)
}

// Service-reported terminal conditions ---------------------------------------

type GeminiError struct{ Msg string }

func (e *GeminiError) Error() string {
	if e.Msg == "" {
		return "gemini error"
	}
	return e.Msg
}

type UsageLimitExceeded struct{ GeminiError }

type ModelInvalid struct{ GeminiError }

type TemporarilyBlocked struct{ GeminiError }

type ValueError struct{ Msg string }

func (e *ValueError) Error() string {
	if e.Msg == "" {
		return "value error"
	}
	return e.Msg
}
