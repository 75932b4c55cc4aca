package rabbitmq

import (
	"context"
	"errors"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

var ErrPaymentIntentRequired = errors.New("payment intent id is required")

// PaymentGateway turns payment calls into commands for the payments worker, which
// owns the processor credentials. Routing key: payment.{hold|capture|void}.
type PaymentGateway struct {
	pub Publisher
}

func NewPaymentGateway(pub Publisher) *PaymentGateway {
	return &PaymentGateway{pub: pub}
}

var _ ports.PaymentGateway = (*PaymentGateway)(nil)

func (g *PaymentGateway) CreateHold(ctx context.Context, hold ports.PaymentHold) error {
	if hold.PaymentIntentID == "" {
		return ErrPaymentIntentRequired
	}
	return g.send(ctx, contracts.PaymentCommand{
		Kind:            contracts.PaymentHold,
		PaymentIntentID: hold.PaymentIntentID,
		RideID:          hold.RideID,
		AmountCents:     hold.AmountCents,
		Currency:        hold.Currency,
		Destination:     hold.DestinationAccount,
		Metadata:        hold.Metadata,
	})
}

func (g *PaymentGateway) Capture(ctx context.Context, paymentIntentID string) error {
	return g.send(ctx, contracts.PaymentCommand{Kind: contracts.PaymentCapture, PaymentIntentID: paymentIntentID})
}

func (g *PaymentGateway) Void(ctx context.Context, paymentIntentID string) error {
	return g.send(ctx, contracts.PaymentCommand{Kind: contracts.PaymentVoid, PaymentIntentID: paymentIntentID})
}

func (g *PaymentGateway) send(ctx context.Context, cmd contracts.PaymentCommand) error {
	if cmd.PaymentIntentID == "" {
		return ErrPaymentIntentRequired
	}
	return publishJSON(ctx, g.pub, contracts.ExchangePaymentsTopic,
		contracts.RoutePaymentPrefix+cmd.Kind, &cmd.Envelope, &cmd)
}
