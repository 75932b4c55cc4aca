package rabbitmq

import (
	"context"
	"fmt"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// Notifier publishes notification commands. Routing key: notification.{sms|email}.
type Notifier struct {
	pub Publisher
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub}
}

var _ ports.Notifier = (*Notifier)(nil)

// Send rejects unknown channels and empty recipients before publishing.
func (n *Notifier) Send(ctx context.Context, msg ports.Notification) error {
	switch msg.Channel {
	case contracts.ChannelSMS, contracts.ChannelEmail:
	default:
		return fmt.Errorf("rabbitmq: unsupported notification channel %q", msg.Channel)
	}
	if msg.Recipient == "" {
		return fmt.Errorf("rabbitmq: %s notification %q has no recipient", msg.Channel, msg.Template)
	}

	cmd := contracts.NotificationCommand{
		Channel:   msg.Channel,
		Template:  msg.Template,
		Recipient: msg.Recipient,
		UserID:    msg.UserID,
		Variables: msg.Variables,
	}
	return publishJSON(ctx, n.pub, contracts.ExchangeNotificationTopic,
		contracts.RouteNotificationPrefix+msg.Channel, &cmd.Envelope, &cmd)
}
