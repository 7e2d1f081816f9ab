package socketio

import (
	"github.com/zishang520/socket.io/v2/socket"
)

// Socket is the server side of one UI connection.
type Socket interface {
	ID() string
	On(event string, handler func(args ...any))
	Emit(event string, payload any) error
	Disconnect()
}

type ioSocket struct {
	s *socket.Socket
}

func wrapSocket(s *socket.Socket) Socket {
	return ioSocket{s: s}
}

func (a ioSocket) ID() string {
	return string(a.s.Id())
}

func (a ioSocket) On(event string, handler func(args ...any)) {
	_ = a.s.On(event, handler)
}

func (a ioSocket) Emit(event string, payload any) error {
	return a.s.Emit(event, payload)
}

func (a ioSocket) Disconnect() {
	a.s.Disconnect(true)
}
