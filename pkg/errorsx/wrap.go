package errorsx

import (
	"errors"
	"fmt"
)

// reasoned carries a ReasonCode alongside the underlying error. The first
// code attached wins: re-wrapping never overwrites it, so the code always
// names the failure's origin rather than whichever layer saw it last.
type reasoned struct {
	code ReasonCode
	err  error
}

func (r *reasoned) Error() string { return fmt.Sprintf("%s: %v", r.code, r.err) }

func (r *reasoned) Unwrap() error { return r.err }

// Wrap tags err with code. Nil stays nil, and an error that already carries
// a code keeps the one it has.
func Wrap(err error, code ReasonCode) error {
	if err == nil {
		return nil
	}
	if Reason(err) != ReasonUnknown {
		return err
	}
	return &reasoned{code: code, err: err}
}

// Reason reports the code err carries, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var r *reasoned
	if errors.As(err, &r) {
		return r.code
	}
	return ReasonUnknown
}

// HasReason reports whether err carries code.
func HasReason(err error, code ReasonCode) bool {
	return Reason(err) == code
}
