// Package apperrors implements chainable application errors that carry the HTTP status
// a handler should answer with. Errors derived from a sentinel keep matching it through
// errors.Is, so storage and API layers can share one error vocabulary.
package apperrors

// Error is an error that can be refined into a child error, wrap driver or library errors,
// and report the HTTP status code it maps to.
type Error interface {
	error
	Unwrap() error

	New(msg string) Error                  // child error with a new message
	Msg(msg string) Error                  // child error with a new message that also keeps the parent in its chain
	MsgErr(msg string, err ...error) Error // child error with a new message wrapping extra errors
	Err(err ...error) Error                // same message, extra wrapped errors
	SetStatusCode(code int) Error          // copy with a different status code
	StatusCode() int
	ErrorAll() string // message followed by the messages of wrapped errors
	UnwrapAll() []error
}
