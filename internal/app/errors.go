package app

import (
	"errors"
	"fmt"

	"medirate_alerts/internal/domain/record"
)

// Error classes of a cycle. Use errors.Is against these; the typed errors below carry
// the details and match their class.
var (
	ErrSourceUnavailable = fmt.Errorf("source unavailable")
	ErrRowParse          = fmt.Errorf("row parse error")
	ErrRowWrite          = fmt.Errorf("row write error")
	ErrMatchConfig       = fmt.Errorf("subscriber preference error")
	ErrDelivery          = fmt.Errorf("delivery error")
)

// Admin errors.
var (
	ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")
	ErrInvalidSubscriber  = fmt.Errorf("subscriber needs an email, at least one state and one category")
)

// SourceUnavailableError means the feed or the store could not be reached for a source.
// The source's stored rows were left untouched.
type SourceUnavailableError struct {
	Source record.Source
	Stage  string // reset, load, purge or list
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Source, e.Stage, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func (e *SourceUnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

// RowParseError is a field that could not be parsed; the field was nulled.
type RowParseError struct {
	Source record.Source
	Row    int // 1-based data row in the snapshot
	Column string
	Value  string
	Err    error
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("%s row %d: column %s value %q: %v", e.Source, e.Row, e.Column, e.Value, e.Err)
}

func (e *RowParseError) Unwrap() error { return e.Err }

func (e *RowParseError) Is(target error) bool { return target == ErrRowParse }

// RowWriteError is an insert or update that failed for one natural key.
type RowWriteError struct {
	Source     record.Source
	NaturalKey string
	Op         string // insert or update
	Err        error
}

func (e *RowWriteError) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Source, e.Op, e.NaturalKey, e.Err)
}

func (e *RowWriteError) Unwrap() error { return e.Err }

func (e *RowWriteError) Is(target error) bool { return target == ErrRowWrite }

// MatchConfigError excludes one subscriber from matching.
type MatchConfigError struct {
	Email  string
	Reason string
	Err    error
}

func (e *MatchConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subscriber %s: %s: %v", e.Email, e.Reason, e.Err)
	}
	return fmt.Sprintf("subscriber %s: %s", e.Email, e.Reason)
}

func (e *MatchConfigError) Unwrap() error { return e.Err }

func (e *MatchConfigError) Is(target error) bool { return target == ErrMatchConfig }

// DeliveryError is a digest that could not be built or sent to one recipient.
type DeliveryError struct {
	Email string
	Stage string // build or send
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s digest for %s: %v", e.Stage, e.Email, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// IsHardFailure reports whether err means a feed or store connection failed.
func IsHardFailure(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}
