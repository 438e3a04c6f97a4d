package domain

import "errors"

var (
	ErrRoomNotFound          = errors.New("room not found")
	ErrNotAMember            = errors.New("not a member of room")
	ErrEmptyMessage          = errors.New("message has neither text nor audio")
	ErrValidation            = errors.New("validation failed")
	ErrForbidden             = errors.New("room access denied")
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrPermissionDenied      = errors.New("microphone permission denied")
	ErrAlreadyRecording      = errors.New("capture already active")
	ErrTransportDisconnected = errors.New("transport disconnected")
)
