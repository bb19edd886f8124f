package errprocess

import (
	"errors"

	"festival_chat_service/pkg/logger"
)

// Kind 區分錯誤種類，決定呼叫端如何回應
type Kind int

const (
	// KindUnknown unclassified error
	KindUnknown Kind = iota
	// KindNotFound room/message/user absent
	KindNotFound
	// KindConflict capacity exceeded, duplicate join, reused refresh token
	KindConflict
	// KindForbidden geofence token missing or expired
	KindForbidden
	// KindTransient ephemeral store unreachable during a non-critical write
	KindTransient
	// KindCorrupt malformed cache value met during reconciliation
	KindCorrupt
)

// Error carries a Kind along the message
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind return the error kind
func (e *Error) Kind() Kind { return e.kind }

// New build an error of the given kind
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// NotFound room/message/user absent
func NotFound(msg string) error { return New(KindNotFound, msg) }

// Conflict capacity exceeded, duplicate join, token reuse
func Conflict(msg string) error { return New(KindConflict, msg) }

// Forbidden geofence token missing/expired
func Forbidden(msg string) error { return New(KindForbidden, msg) }

// Transient ephemeral store failure on a non-essential side effect
func Transient(msg string) error { return New(KindTransient, msg) }

// Corrupt malformed cache value
func Corrupt(msg string) error { return New(KindCorrupt, msg) }

// KindOf return the kind of err, KindUnknown if untyped
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// Is report whether err carries the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}
