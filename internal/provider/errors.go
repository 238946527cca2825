package provider

import "errors"

var (
	// ErrThrottled marks a response carrying an advisory "Note"/"Information" key.
	ErrThrottled = errors.New("provider throttled the request")
	// ErrMalformed marks transport failures, non-2xx statuses and unrecognized bodies.
	ErrMalformed = errors.New("malformed or missing provider response")
	// ErrSchemaMismatch marks a success envelope with an absent or unparsable field.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrDivisionUndefined marks a derived metric whose denominator is zero.
	ErrDivisionUndefined = errors.New("division undefined")
)
