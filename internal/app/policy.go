package app

import (
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy is the permission and slow-consumer collaborator.
type Policy interface {
	CanAccess(user *domain.User, room domain.Room) bool
	OnBackPressure(room domain.RoomID, member core.MemberSession) BackpressureAction
}

// SimplePolicy lets everyone into every room. Slow consumers lose the frame
// and catch up from history, unless KickSlow is set.
type SimplePolicy struct {
	KickSlow bool
}

func (SimplePolicy) CanAccess(*domain.User, domain.Room) bool { return true }

func (p SimplePolicy) OnBackPressure(domain.RoomID, core.MemberSession) BackpressureAction {
	if p.KickSlow {
		return KickMember
	}
	return DropFrame
}
