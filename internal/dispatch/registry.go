package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ride-dispatch/internal/domain/user"
)

// SessionHandle identifies one live socket. A user may hold several at once.
type SessionHandle string

// NewSessionHandle returns a fresh random handle.
func NewSessionHandle() SessionHandle {
	return SessionHandle(uuid.NewString())
}

func (h SessionHandle) String() string { return string(h) }

// Connection is the registry record of an authenticated session.
type Connection struct {
	Handle      SessionHandle
	UserID      string
	Role        user.Role
	ConnectedAt time.Time
}

// Registry maps session handles to the authenticated identity behind them.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byHandle map[SessionHandle]Connection
	byUser   map[string]map[SessionHandle]struct{}
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byHandle: make(map[SessionHandle]Connection),
		byUser:   make(map[string]map[SessionHandle]struct{}),
		now:      time.Now,
	}
}

// Connect records handle as belonging to userID. Re-registering a handle replaces
// the previous record.
func (r *Registry) Connect(handle SessionHandle, userID string, role user.Role) Connection {
	conn := Connection{
		Handle:      handle,
		UserID:      userID,
		Role:        role,
		ConnectedAt: r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byHandle[handle]; ok {
		r.unindexLocked(old)
	}
	r.byHandle[handle] = conn
	sessions, ok := r.byUser[userID]
	if !ok {
		sessions = make(map[SessionHandle]struct{}, 1)
		r.byUser[userID] = sessions
	}
	sessions[handle] = struct{}{}
	return conn
}

// Disconnect removes handle. The second result is false if it was not registered.
func (r *Registry) Disconnect(handle SessionHandle) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byHandle[handle]
	if !ok {
		return Connection{}, false
	}
	delete(r.byHandle, handle)
	r.unindexLocked(conn)
	return conn, true
}

func (r *Registry) unindexLocked(conn Connection) {
	sessions := r.byUser[conn.UserID]
	delete(sessions, conn.Handle)
	if len(sessions) == 0 {
		delete(r.byUser, conn.UserID)
	}
}

// SessionsFor returns every live handle of userID, possibly none.
func (r *Registry) SessionsFor(userID string) []SessionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byUser[userID]
	out := make([]SessionHandle, 0, len(sessions))
	for h := range sessions {
		out = append(out, h)
	}
	return out
}

// RoleOf returns the role the session authenticated with.
func (r *Registry) RoleOf(handle SessionHandle) (user.Role, error) {
	conn, err := r.Lookup(handle)
	if err != nil {
		return "", err
	}
	return conn.Role, nil
}

func (r *Registry) Lookup(handle SessionHandle) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byHandle[handle]
	if !ok {
		return Connection{}, ErrNotFound
	}
	return conn, nil
}

// Connected reports whether userID has at least one live session.
func (r *Registry) Connected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}
