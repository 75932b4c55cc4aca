package websocket

import (
	"sync"

	"github.com/gorilla/websocket"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
)

// session is one authenticated socket and its bounded outbound queue.
type session struct {
	handle dispatch.SessionHandle
	userID string
	role   user.Role
	conn   *websocket.Conn

	// send is never closed; done signals the writer to stop.
	send      chan contracts.WSOutbound
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(handle dispatch.SessionHandle, userID string, role user.Role, conn *websocket.Conn, opts Options) *session {
	return &session{
		handle: handle,
		userID: userID,
		role:   role,
		conn:   conn,
		send:   make(chan contracts.WSOutbound, opts.OutboundBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the session is closing or the
// queue is full; the message is dropped in both cases.
func (s *session) enqueue(msg contracts.WSOutbound) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
