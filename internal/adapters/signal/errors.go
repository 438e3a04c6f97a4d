package signal

import (
	"errors"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

const (
	CodeRoomNotFound = "ROOM_NOT_FOUND"
	CodeNotAMember   = "NOT_A_MEMBER"
	CodeEmptyMessage = "EMPTY_MESSAGE"
	CodeValidation   = "VALIDATION"
	CodeForbidden    = "FORBIDDEN"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL"
)

var (
	errBadPayload  = errors.New("bad payload")
	errUnknownType = errors.New("unknown frame type")
)

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ErrorCode maps an error to its stable wire code.
func ErrorCode(err error) (code string, retryable bool) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound, false
	case errors.Is(err, domain.ErrNotAMember):
		return CodeNotAMember, false
	case errors.Is(err, domain.ErrEmptyMessage):
		return CodeEmptyMessage, false
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUsernameEmpty),
		errors.Is(err, domain.ErrUsernameTooLong),
		errors.Is(err, errBadPayload),
		errors.Is(err, errUnknownType):
		return CodeValidation, false
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden, false
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited, true
	case errors.Is(err, orch.ErrUnknownSession), errors.Is(err, core.ErrRoomClosed):
		return CodeInternal, false
	default:
		return CodeInternal, true
	}
}
