package core

import (
	"errors"

	"github.com/vovakirdan/roomrelay/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound         = "not_found"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotConnected     = "not_connected"
	ErrCodeNotInRoom        = "not_in_room"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal"
)

var (
	// ErrNotFound reports a missing identity or record.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable reports a failed durable-layer call.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrValidation reports a malformed request.
	ErrValidation = errors.New("validation failure")
	// ErrNotConnected reports an operation on a connection that is not live.
	ErrNotConnected = errors.New("not connected")
	// ErrNotInRoom reports a send to a room the connection has not joined.
	ErrNotInRoom = errors.New("not in room")
	// ErrNameSpaceExhausted reports that no unique display name could be generated.
	ErrNameSpaceExhausted = errors.New("display name space exhausted")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// AsCoreError maps any error returned by the coordinator to a wire error.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrValidation):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		return coreError(ErrCodeStoreUnavailable, err.Error())
	case errors.Is(err, ErrNotConnected):
		return coreError(ErrCodeNotConnected, err.Error())
	case errors.Is(err, ErrNotInRoom):
		return coreError(ErrCodeNotInRoom, err.Error())
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
