package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

type published struct {
	exchange string
	key      string
	body     []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{exchange: exchange, key: routingKey, body: body})
	return nil
}

func (f *fakePublisher) last(t *testing.T) published {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.msgs)
	return f.msgs[len(f.msgs)-1]
}

func TestPaymentGateway_Commands(t *testing.T) {
	pub := &fakePublisher{}
	gw := NewPaymentGateway(pub)
	ctx := logger.Discard().WithRequestID(context.Background(), "req_1")

	require.NoError(t, gw.CreateHold(ctx, ports.PaymentHold{
		PaymentIntentID:    "pi_1",
		RideID:             "ride-1",
		AmountCents:        1234,
		Currency:           "usd",
		DestinationAccount: "acct_9",
	}))

	msg := pub.last(t)
	assert.Equal(t, contracts.ExchangePaymentsTopic, msg.exchange)
	assert.Equal(t, "payment.hold", msg.key)

	var cmd contracts.PaymentCommand
	require.NoError(t, json.Unmarshal(msg.body, &cmd))
	assert.Equal(t, "pi_1", cmd.PaymentIntentID)
	assert.Equal(t, int64(1234), cmd.AmountCents)
	assert.Equal(t, "acct_9", cmd.Destination)
	assert.Equal(t, "req_1", cmd.CorrelationID)
	assert.Equal(t, producerName, cmd.Producer)
	assert.False(t, cmd.SentAt.IsZero())

	require.NoError(t, gw.Capture(ctx, "pi_1"))
	assert.Equal(t, "payment.capture", pub.last(t).key)

	require.NoError(t, gw.Void(ctx, "pi_1"))
	assert.Equal(t, "payment.void", pub.last(t).key)

	assert.ErrorIs(t, gw.Capture(ctx, ""), ErrPaymentIntentRequired)
	assert.ErrorIs(t, gw.CreateHold(ctx, ports.PaymentHold{}), ErrPaymentIntentRequired)
}

func TestPaymentGateway_PropagatesPublishError(t *testing.T) {
	boom := errors.New("broker down")
	gw := NewPaymentGateway(&fakePublisher{err: boom})
	assert.ErrorIs(t, gw.Void(context.Background(), "pi_1"), boom)
}

func TestNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub)

	require.NoError(t, n.Send(context.Background(), ports.Notification{
		Channel:   contracts.ChannelSMS,
		Template:  "ride_update",
		Recipient: "+15550100",
		UserID:    "rider-1",
		Variables: map[string]string{"status": "ARRIVED"},
	}))

	msg := pub.last(t)
	assert.Equal(t, contracts.ExchangeNotificationTopic, msg.exchange)
	assert.Equal(t, "notification.sms", msg.key)

	var cmd contracts.NotificationCommand
	require.NoError(t, json.Unmarshal(msg.body, &cmd))
	assert.Equal(t, "ride_update", cmd.Template)
	assert.Equal(t, "ARRIVED", cmd.Variables["status"])

	assert.Error(t, n.Send(context.Background(), ports.Notification{Channel: "pigeon", Recipient: "x"}))
	assert.Error(t, n.Send(context.Background(), ports.Notification{Channel: contracts.ChannelEmail}))
}

func TestStatusStream(t *testing.T) {
	pub := &fakePublisher{}
	s := NewStatusStream(pub)

	r := &ride.Ride{ID: "ride-1", RiderID: "rider-1", DriverID: "driver-1", Status: ride.StatusAccepted, Fare: 12.5, UpdatedAt: time.Now()}
	require.NoError(t, s.PublishStatus(context.Background(), r, ride.StatusRequested))

	msg := pub.last(t)
	assert.Equal(t, contracts.ExchangeRideTopic, msg.exchange)
	assert.Equal(t, "ride.status.ACCEPTED", msg.key)

	var out contracts.RideStatusMessage
	require.NoError(t, json.Unmarshal(msg.body, &out))
	assert.Equal(t, "REQUESTED", out.Previous)
	assert.Equal(t, "driver-1", out.DriverID)
}

// TestClient_PublishRoundTrip needs a broker at DISPATCH_TEST_RABBITMQ_URL.
func TestClient_PublishRoundTrip(t *testing.T) {
	url := os.Getenv("DISPATCH_TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("DISPATCH_TEST_RABBITMQ_URL not set")
	}

	client, err := Connect(context.Background(), Options{URL: url}, logger.Discard())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, NewPaymentGateway(client).Void(context.Background(), "pi_roundtrip"))

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	require.Eventually(t, func() bool {
		d, ok, err := ch.Get(contracts.QueuePaymentCmds, true)
		if err != nil || !ok {
			return false
		}
		var cmd contracts.PaymentCommand
		return json.Unmarshal(d.Body, &cmd) == nil && cmd.PaymentIntentID == "pi_roundtrip"
	}, 5*time.Second, 100*time.Millisecond)
}
