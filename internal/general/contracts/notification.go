package contracts

// Notification channels, used as the routing key suffix.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// NotificationCommand asks the notification worker to render Template and deliver it.
// Routing key: "notification.{channel}" on ExchangeNotificationTopic.
type NotificationCommand struct {
	Channel   string            `json:"channel"`
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"` // phone number or email address
	UserID    string            `json:"user_id,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
	Envelope
}
