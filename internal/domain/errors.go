package domain

import "errors"

var (
	// ErrNotFound is returned by the state store when a path has no value.
	ErrNotFound = errors.New("path not found")
	// ErrPreconditionFailed is returned for a phase transition requested from
	// an invalid current phase; nothing is written.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrStoreWrite wraps a transient store fault; the caller decides whether
	// to re-issue the action.
	ErrStoreWrite = errors.New("state store write failed")
	// ErrAnswerOutOfRange indicates a submitted answer index outside the
	// question's option list.
	ErrAnswerOutOfRange = errors.New("answer index out of range")
	// ErrQuestionSetNotFound indicates the question content could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrRoomNotFound indicates an unknown room code.
	ErrRoomNotFound = errors.New("room not found")
)
