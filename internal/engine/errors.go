package engine

import "fmt"

// ValidationError marks caller mistakes that adapters map to a 400.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func Invalidf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps failures from Spotify or the AI endpoint.
type UpstreamError struct {
	Op  string
	Err error
}

func (e UpstreamError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e UpstreamError) Unwrap() error { return e.Err }
