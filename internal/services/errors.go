package services

import "errors"

// Domain errors returned by the relationship services. All of them are
// caller-correctable: the request was understood but the current state
// does not permit it. None is process-fatal.
var (
	ErrSelfReference        = errors.New("cannot have a relationship with yourself")
	ErrAlreadyPending       = errors.New("friend request already pending")
	ErrPendingFromOther     = errors.New("counterpart already sent a request, respond to it instead")
	ErrAlreadyAccepted      = errors.New("users are already friends")
	ErrRecentlyRejected     = errors.New("request was rejected")
	ErrNotPending           = errors.New("relationship is not pending")
	ErrNotAccepted          = errors.New("relationship is not accepted")
	ErrAlreadyVerified      = errors.New("relationship is already verified")
	ErrAlreadyBlockedBySelf = errors.New("already blocked by you")
	ErrNotBlocked           = errors.New("relationship is not blocked")
	ErrBlocked              = errors.New("relationship is blocked")
	ErrNotAuthorized        = errors.New("not authorized for this relationship")
	ErrInvalidState         = errors.New("operation not valid in current state")
	ErrUseRejectInstead     = errors.New("use reject instead of remove")
	ErrNotFound             = errors.New("not found")

	// ErrConflictAlreadyExists reports that a racing create for the same
	// pair won; exactly one document exists.
	ErrConflictAlreadyExists = errors.New("relationship was created concurrently")
	// ErrConflict reports that a transition lost its optimistic check twice.
	ErrConflict = errors.New("concurrent modification, retry")

	// ErrUnavailable wraps infrastructure failures (storage unreachable).
	// Retried by the caller's transport layer, never swallowed here.
	ErrUnavailable = errors.New("storage unavailable")
)

func unavailable(err error) error {
	return errors.Join(ErrUnavailable, err)
}
