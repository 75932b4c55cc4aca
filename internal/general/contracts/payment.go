package contracts

// Payment command kinds, used as the routing key suffix.
const (
	PaymentHold    = "hold"
	PaymentCapture = "capture"
	PaymentVoid    = "void"
)

// PaymentCommand asks the payments worker to act on a hold.
// Routing key: "payment.{kind}" on ExchangePaymentsTopic.
type PaymentCommand struct {
	Kind            string            `json:"kind"`
	PaymentIntentID string            `json:"payment_intent_id"`
	RideID          string            `json:"ride_id,omitempty"`
	AmountCents     int64             `json:"amount_cents,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	Destination     string            `json:"destination_account,omitempty"` // driver's connected account
	Metadata        map[string]string `json:"metadata,omitempty"`
	Envelope
}
