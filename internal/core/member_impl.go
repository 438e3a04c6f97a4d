package core

import "github.com/dkeye/Chat/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	meta   *domain.Member
	signal SignalConnection
}

func NewMemberSession(meta *domain.Member, signal SignalConnection) MemberSession {
	return &memberSession{meta: meta, signal: signal}
}

func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.signal }

// UpdateSignal returns a copy bound to another connection; rooms holding the old value are unaffected.
func (m *memberSession) UpdateSignal(s SignalConnection) MemberSession {
	return &memberSession{meta: m.meta, signal: s}
}
