package service

import (
	"context"
	"fmt"
	"strconv"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// Notification templates rendered by the notification worker.
const (
	TemplateRideConfirmation = "ride_confirmation"
	TemplateRideUpdate       = "ride_update"
	TemplateRideReceipt      = "ride_receipt"
)

// Everything in this file runs after the transition is committed. Failures are
// logged and never undo or fail the transition.

func (service *rideService) audit(ctx context.Context, t ride.Transition, actorID string) {
	if service.eventLog == nil {
		return
	}
	ev, err := ride.EventFromTransition(t, actorID)
	if err == nil {
		err = service.eventLog.Append(ctx, ev)
	}
	if err != nil {
		service.logger.Error(ctx, "ride_event_append_failed", "Failed to record ride event", err, map[string]any{
			"status": t.To.String(),
		})
	}
}

func (service *rideService) streamStatus(ctx context.Context, r *ride.Ride, previous ride.Status) {
	if service.statusStream == nil {
		return
	}
	if err := service.statusStream.PublishStatus(ctx, r, previous); err != nil {
		service.logger.Error(ctx, "ride_status_publish_failed", "Failed to publish ride status", err, map[string]any{
			"status": r.Status.String(),
		})
	}
}

func (service *rideService) placeHold(ctx context.Context, r *ride.Ride, account string) {
	if service.payments == nil {
		return
	}
	hold := ports.PaymentHold{
		PaymentIntentID:    r.PaymentIntentID,
		RideID:             r.ID,
		AmountCents:        r.FareCents(),
		Currency:           service.pricing.Currency,
		DestinationAccount: account,
		Metadata: map[string]string{
			"ride_id":   r.ID,
			"rider_id":  r.RiderID,
			"driver_id": r.DriverID,
		},
	}
	if err := service.payments.CreateHold(ctx, hold); err != nil {
		service.logger.Error(ctx, "payment_hold_failed", "Failed to create payment hold", err, map[string]any{
			"payment_intent_id": r.PaymentIntentID,
		})
		return
	}
	service.logger.Info(ctx, "payment_hold_created", "Payment hold requested", map[string]any{
		"payment_intent_id": r.PaymentIntentID,
		"amount_cents":      hold.AmountCents,
	})
}

// executeIntent performs the payment side effect a transition asked for. Rides
// accepted by drivers without a payment account carry no hold and are skipped.
func (service *rideService) executeIntent(ctx context.Context, t ride.Transition) {
	intentID := t.Ride.PaymentIntentID
	if t.Intent == ride.IntentNone || intentID == "" || service.payments == nil {
		return
	}

	var err error
	switch t.Intent {
	case ride.IntentCapturePayment:
		err = service.payments.Capture(ctx, intentID)
	case ride.IntentVoidPayment:
		err = service.payments.Void(ctx, intentID)
	default:
		err = fmt.Errorf("unknown payment intent %q", t.Intent)
	}

	details := map[string]any{"payment_intent_id": intentID, "intent": string(t.Intent)}
	if err != nil {
		service.logger.Error(ctx, "payment_intent_failed", "Failed to execute payment intent", err, details)
		return
	}
	service.logger.Info(ctx, "payment_intent_executed", "Payment intent executed", details)
}

func (service *rideService) notifyAccepted(ctx context.Context, r *ride.Ride) {
	service.notifySMS(ctx, r.RiderID, TemplateRideConfirmation, map[string]string{
		"ride_id":   r.ID,
		"driver_id": r.DriverID,
	})
}

func (service *rideService) notifyProgress(ctx context.Context, t ride.Transition) {
	r := &t.Ride
	switch t.To {
	case ride.StatusArrived:
		service.notifySMS(ctx, r.RiderID, TemplateRideUpdate, map[string]string{
			"ride_id": r.ID,
			"status":  "Your driver has arrived",
		})
	case ride.StatusCompleted:
		service.notifyEmail(ctx, r.RiderID, TemplateRideReceipt, map[string]string{
			"ride_id":        r.ID,
			"fare":           strconv.FormatFloat(r.Fare, 'f', 2, 64),
			"distance_miles": strconv.FormatFloat(r.DistanceMiles, 'f', 2, 64),
			"pickup":         r.Pickup.Address,
			"dropoff":        r.Dropoff.Address,
		})
	}
}

// notifyCancelled tells the other party, if there is one.
func (service *rideService) notifyCancelled(ctx context.Context, t ride.Transition, cancelledBy string) {
	r := &t.Ride
	recipient := r.RiderID
	if cancelledBy == r.RiderID {
		recipient = r.DriverID
	}
	if recipient == "" {
		return
	}
	service.notifySMS(ctx, recipient, TemplateRideUpdate, map[string]string{
		"ride_id": r.ID,
		"status":  "Ride cancelled",
		"reason":  r.CancellationReason,
	})
}

func (service *rideService) notifySMS(ctx context.Context, userID, template string, vars map[string]string) {
	service.notify(ctx, userID, template, vars, func(c user.Contact) (string, string) {
		if c.Phone != "" {
			return contracts.ChannelSMS, c.Phone
		}
		return contracts.ChannelEmail, c.Email
	})
}

func (service *rideService) notifyEmail(ctx context.Context, userID, template string, vars map[string]string) {
	service.notify(ctx, userID, template, vars, func(c user.Contact) (string, string) {
		if c.Email != "" {
			return contracts.ChannelEmail, c.Email
		}
		return contracts.ChannelSMS, c.Phone
	})
}

func (service *rideService) notify(
	ctx context.Context,
	userID, template string,
	vars map[string]string,
	route func(user.Contact) (channel, recipient string),
) {
	if service.notifier == nil || service.users == nil {
		return
	}

	contact, err := service.users.Contact(ctx, userID)
	if err != nil {
		service.logger.Error(ctx, "contact_lookup_failed", "Failed to load user contact", err, map[string]any{"user_id": userID})
		return
	}
	if !contact.Reachable() {
		return
	}

	channel, recipient := route(contact)
	err = service.notifier.Send(ctx, ports.Notification{
		Channel:   channel,
		Template:  template,
		Recipient: recipient,
		UserID:    userID,
		Variables: vars,
	})
	if err != nil {
		service.logger.Error(ctx, "notification_failed", "Failed to send notification", err, map[string]any{
			"user_id":  userID,
			"template": template,
			"channel":  channel,
		})
	}
}
