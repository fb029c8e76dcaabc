package domain

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrAlreadyQueued       = errors.New("already queued")
	ErrAlreadyInSession    = errors.New("already in an active session")
	ErrNotQueued           = errors.New("not queued")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionEnded        = errors.New("session already ended")
	ErrUnauthorized        = errors.New("not a participant of this session")
	ErrLockNotAcquired     = errors.New("matching lock not acquired")
	ErrProvisioningFailure = errors.New("room provisioning failed")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// IsRetryable reports whether the caller may back off and try the same request again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockNotAcquired) ||
		errors.Is(err, ErrProvisioningFailure) ||
		errors.Is(err, ErrStoreUnavailable)
}
