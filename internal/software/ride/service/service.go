package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

// EventPublisher fans domain events out to live sessions.
type EventPublisher interface {
	Publish(ctx context.Context, e dispatch.Event) int
}

// Deps lists the collaborators of the ride service. EventLog, StatusStream and
// Effects are optional. Without Effects, post-commit side effects run inline
// after the ride lock is released.
type Deps struct {
	Logger       *logger.Logger
	Rides        ports.RideStore
	Users        ports.UserStore
	EventLog     ports.RideEventLog
	Payments     ports.PaymentGateway
	Notifier     ports.Notifier
	StatusStream ports.RideStatusPublisher
	Events       EventPublisher
	Effects      *EffectQueue
	Pricing      Pricing
}

// rideService encapsulates the ride lifecycle logic and dependencies.
type rideService struct {
	logger       *logger.Logger
	rides        ports.RideStore
	users        ports.UserStore
	eventLog     ports.RideEventLog
	payments     ports.PaymentGateway
	notifier     ports.Notifier
	statusStream ports.RideStatusPublisher
	events       EventPublisher
	effects      *EffectQueue
	pricing      Pricing

	locks *dispatch.KeyedMutex
	now   func() time.Time
	newID func() string
}

// NewRideService creates a new instance of the RideService with the provided dependencies.
func NewRideService(deps Deps) ports.RideService {
	return newRideService(deps)
}

func newRideService(deps Deps) *rideService {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &rideService{
		logger:       log,
		rides:        deps.Rides,
		users:        deps.Users,
		eventLog:     deps.EventLog,
		payments:     deps.Payments,
		notifier:     deps.Notifier,
		statusStream: deps.StatusStream,
		events:       deps.Events,
		effects:      deps.Effects,
		pricing:      deps.Pricing.withDefaults(),
		locks:        dispatch.NewKeyedMutex(),
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// afterCommit runs effects on the ride's effect worker, or inline without a queue.
func (service *rideService) afterCommit(ctx context.Context, rideID string, effects func(ctx context.Context)) {
	if service.effects == nil {
		effects(ctx)
		return
	}
	service.effects.submit(ctx, rideID, effects)
}
