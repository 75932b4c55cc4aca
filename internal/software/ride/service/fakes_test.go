package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

type memoryRides struct {
	mu    sync.Mutex
	rides map[string]ride.Ride
}

func newMemoryRides() *memoryRides {
	return &memoryRides{rides: make(map[string]ride.Ride)}
}

func (m *memoryRides) Create(_ context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = *r
	return nil
}

func (m *memoryRides) Get(_ context.Context, id string) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return &r, nil
}

func (m *memoryRides) Update(_ context.Context, id string, mutate ports.RideMutation) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	if err := mutate(&r); err != nil {
		return nil, err
	}
	m.rides[id] = r
	return &r, nil
}

func (m *memoryRides) ListForUser(_ context.Context, q ports.RideQuery) ([]*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ride.Ride
	for _, r := range m.rides {
		if !r.Party().Has(q.UserID) || (q.ActiveOnly && r.Status.Terminal()) {
			continue
		}
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memoryRides) backdate(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rides[id]
	r.CreatedAt = at
	m.rides[id] = r
}

type memoryUsers struct {
	accounts map[string]string
	contacts map[string]user.Contact
}

func (u *memoryUsers) ConnectedAccountID(_ context.Context, driverID string) (string, error) {
	return u.accounts[driverID], nil
}

func (u *memoryUsers) Contact(_ context.Context, userID string) (user.Contact, error) {
	c, ok := u.contacts[userID]
	if !ok {
		return user.Contact{}, errors.New("no such user")
	}
	return c, nil
}

type recordingPayments struct {
	mu       sync.Mutex
	holds    []ports.PaymentHold
	captures []string
	voids    []string
	fail     error
}

func (p *recordingPayments) CreateHold(_ context.Context, hold ports.PaymentHold) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holds = append(p.holds, hold)
	return p.fail
}

func (p *recordingPayments) Capture(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures = append(p.captures, id)
	return p.fail
}

func (p *recordingPayments) Void(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voids = append(p.voids, id)
	return p.fail
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
}

func (n *recordingNotifier) Send(_ context.Context, msg ports.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Template)
	}
	return out
}

type recordingEvents struct {
	mu     sync.Mutex
	events []dispatch.Event
}

func (e *recordingEvents) Publish(_ context.Context, ev dispatch.Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return 1
}

func (e *recordingEvents) all() []dispatch.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]dispatch.Event(nil), e.events...)
}

type recordingLog struct {
	mu     sync.Mutex
	events []*ride.Event
}

func (l *recordingLog) Append(_ context.Context, e *ride.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

type recordingStream struct {
	mu       sync.Mutex
	statuses []string
}

func (s *recordingStream) PublishStatus(_ context.Context, r *ride.Ride, _ ride.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, r.Status.String())
	return nil
}

type countingDeliverer struct {
	mu  sync.Mutex
	got []dispatch.SessionHandle
}

func (d *countingDeliverer) Deliver(h dispatch.SessionHandle, _ contracts.WSOutbound) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, h)
	return true
}

func (d *countingDeliverer) take() []dispatch.SessionHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.got
	d.got = nil
	return out
}
