package activitypub

import (
	"errors"
	"fmt"
)

var (
	// ErrDomainMismatch is returned when two identifiers which must share an
	// origin do not.
	ErrDomainMismatch = errors.New("domains do not match")

	// ErrIdentityMismatch is returned when a fetched document claims an id
	// other than the one it was fetched from.
	ErrIdentityMismatch = errors.New("fetched object has a different id")

	// ErrLocalObject is returned when a peer sends an object owned by this
	// instance.
	ErrLocalObject = errors.New("object is local")

	// ErrUnsupported is returned for activity or object types this instance
	// does not handle.
	ErrUnsupported = errors.New("unsupported type")

	// ErrFetchLimit is returned once an inbound unit has made too many
	// network fetches.
	ErrFetchLimit = errors.New("fetch limit exceeded")

	// ErrNotConfirmed is returned when the origin of a relayed object does
	// not serve it in the relayed form.
	ErrNotConfirmed = errors.New("not confirmed by origin")

	// ErrCycle is returned when resolving an object requires resolving itself.
	ErrCycle = errors.New("reference cycle")
)

// VerificationError rejects an inbound activity before any write.
type VerificationError struct {
	ID  string
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s: %v", e.ID, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// ResolutionError means a remote identifier could not be turned into a
// local row. Nothing was persisted.
type ResolutionError struct {
	ID  string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.ID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ApplyError is a failure to apply a verified activity.
type ApplyError struct {
	ID  string
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.ID, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

func verificationError(id string, err error) error {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return err
	}
	return &VerificationError{ID: id, Err: err}
}
