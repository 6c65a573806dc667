package domain

import "errors"

var (
	// ErrUserNotFound indicates the acting user could not be identified.
	ErrUserNotFound = errors.New("user not found")
	// ErrOtherUserNotFound indicates the counterpart user could not be identified.
	ErrOtherUserNotFound = errors.New("other user not found")
	// ErrRoomNotFound indicates a referenced room document does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomsFetchFailed indicates the recent-rooms query failed.
	ErrRoomsFetchFailed = errors.New("rooms fetch failed")
	// ErrAlreadyExists indicates an idempotent write found nothing to do.
	// Callers treat it as success-shaped, never as a fault.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUpdateFailed indicates a membership or field update did not persist.
	// The enclosing operation is safe to retry.
	ErrUpdateFailed = errors.New("update failed")
	// ErrNoticeNotFound indicates a referenced notice does not exist.
	ErrNoticeNotFound = errors.New("notice not found")
	// ErrUnknown wraps store faults with no closer domain mapping.
	ErrUnknown = errors.New("unknown error")
)
