package decoder

import (
	"errors"
	"fmt"

	"github.com/rickgao/rtd-loader/internal/model"
)

// Errors
var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrUnknownBroker     = errors.New("unknown broker")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrIncompatibleDate  = errors.New("incompatible reference date")
)

// DecodeError describes a record that could not be applied.
type DecodeError struct {
	Family model.Family
	Record string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s decode: %v", e.Family, e.Err)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return fmt.Sprintf("%s (record %q)", msg, truncate(e.Record, 64))
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(family model.Family, record string, err error, format string, args ...any) *DecodeError {
	return &DecodeError{
		Family: family,
		Record: record,
		Reason: fmt.Sprintf(format, args...),
		Err:    err,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
