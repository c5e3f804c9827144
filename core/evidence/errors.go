package evidence

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
)

var (
	// errors
	ErrNotFound        = errors.New("evidence not found")
	ErrLearnerNotFound = errors.New("learner not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrQuotaExceeded   = errors.New("submission quota exceeded")
)

func invalidInput(field, reason string) error {
	return core.NewValidationError(ErrInvalidInput, core.FieldError{Field: field, Error: reason})
}

// IsNotFound reports whether `err` is caused by an unknown learner or record.
func IsNotFound(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrNotFound || cause == ErrLearnerNotFound
}

// IsInvalidInput reports whether `err` was caused by invalid evidence input.
func IsInvalidInput(err error) bool {
	verr, ok := errors.Cause(err).(*core.ValidationError)
	return ok && verr.Err == ErrInvalidInput
}

// CooldownError is returned when a track is still within its cooldown window.
type CooldownError struct {
	Track            string
	DaysRemaining    int
	NextEligibleDate time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s cooldown active: %d days remaining", e.Track, e.DaysRemaining)
}

// IsCooldownActive returns the *CooldownError causing `err`, if any.
func IsCooldownActive(err error) (*CooldownError, bool) {
	cerr, ok := errors.Cause(err).(*CooldownError)
	return cerr, ok
}

// StorageError wraps a file store failure. No database state is committed when it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsStorageFailure(err error) bool {
	_, ok := errors.Cause(err).(*StorageError)
	return ok
}
