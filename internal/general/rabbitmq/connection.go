package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/logger"
)

var errClientClosed = errors.New("rabbitmq: client closed")

// Options tunes the broker link. Zero values use defaults.
type Options struct {
	URL         string
	Heartbeat   time.Duration
	DialTimeout time.Duration
	MaxBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Heartbeat <= 0 {
		o.Heartbeat = 10 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 30 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	return o
}

// OptionsFromConfig reads the rabbitmq section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL:        cfg.RabbitURL(),
		Heartbeat:  cfg.RabbitMQ.Heartbeat,
		MaxBackoff: cfg.RabbitMQ.ReconnectMaxBackoff,
	}
}

// link is one live connection with its confirm-mode publishing channel. The
// confirm stream belongs to ch: amqp091 closes it when ch shuts down.
type link struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	confirms <-chan amqp.Confirmation
}

func (l *link) open() bool {
	return l != nil && !l.conn.IsClosed() && !l.ch.IsClosed()
}

// Client publishes dispatch commands and keeps its broker link alive, redialing
// with capped exponential backoff when the link drops.
type Client struct {
	opts   Options
	logger *logger.Logger
	logCtx context.Context

	mu   sync.RWMutex
	link *link

	// pubMu pairs each publish with its confirm.
	pubMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	lost      chan struct{}
}

// ConnectRabbitMQ connects using the rabbitmq config section.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Client, error) {
	return Connect(ctx, OptionsFromConfig(cfg), logger)
}

// Connect dials the broker once, declares the dispatch topology and starts the
// reconnect loop. An unreachable broker at startup is an error.
func Connect(ctx context.Context, opts Options, logger *logger.Logger) (*Client, error) {
	client := &Client{
		opts:   opts.withDefaults(),
		logger: logger,
		logCtx: context.WithoutCancel(ctx),
		closed: make(chan struct{}),
		lost:   make(chan struct{}, 1),
	}

	if err := client.dial(); err != nil {
		return nil, err
	}
	go client.redialLoop()

	return client, nil
}

// Close stops reconnecting and closes the current link. Safe to call twice.
func (client *Client) Close() {
	client.closeOnce.Do(func() {
		close(client.closed)

		client.mu.Lock()
		l := client.link
		client.link = nil
		client.mu.Unlock()

		if l != nil {
			_ = l.ch.Close()
			_ = l.conn.Close()
		}
		client.logger.Info(client.logCtx, "broker_closed", "Broker link closed", nil)
	})
}

func (client *Client) current() *link {
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.link
}

// dial opens a connection and a confirm-mode channel, declares topology and
// installs the result as the current link.
func (client *Client) dial() error {
	conn, err := amqp.DialConfig(client.opts.URL, amqp.Config{
		Heartbeat: client.opts.Heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(client.opts.DialTimeout),
	})
	if err != nil {
		client.logger.Error(client.logCtx, "broker_dial_failed", "Failed to dial broker", err, nil)
		return fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	l, err := client.prepare(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	client.mu.Lock()
	select {
	case <-client.closed:
		client.mu.Unlock()
		_ = conn.Close()
		return errClientClosed
	default:
	}
	client.link = l
	client.mu.Unlock()

	go client.watchLink(l)

	client.logger.Info(client.logCtx, "broker_connected", "Broker link established", map[string]any{
		"heartbeat": client.opts.Heartbeat.String(),
	})
	return nil
}

func (client *Client) prepare(conn *amqp.Connection) (*link, error) {
	ch, err := conn.Channel()
	if err != nil {
		client.logger.Error(client.logCtx, "broker_channel_failed", "Failed to open publishing channel", err, nil)
		return nil, fmt.Errorf("rabbitmq: failed to open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		client.logger.Error(client.logCtx, "broker_topology_failed", "Failed to declare dispatch topology", err, nil)
		return nil, fmt.Errorf("rabbitmq: failed to declare topology: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		client.logger.Error(client.logCtx, "broker_confirm_failed", "Failed to enable publisher confirms", err, nil)
		return nil, fmt.Errorf("rabbitmq: failed to enable confirms: %w", err)
	}

	l := &link{
		conn:     conn,
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}

	// Commands are published mandatory; an unroutable one means a queue binding is missing.
	returns := ch.NotifyReturn(make(chan amqp.Return, 1))
	go func() {
		for r := range returns {
			client.logger.Error(client.logCtx, "broker_message_returned", "Dispatch command was unroutable",
				fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
				map[string]any{"exchange": r.Exchange, "routing_key": r.RoutingKey},
			)
		}
	}()

	return l, nil
}

// watchLink signals the redial loop once l's connection or channel goes away.
func (client *Client) watchLink(l *link) {
	connClosed := l.conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := l.ch.NotifyClose(make(chan *amqp.Error, 1))

	var reason *amqp.Error
	select {
	case <-client.closed:
		return
	case reason = <-connClosed:
	case reason = <-chClosed:
	}

	select {
	case <-client.closed:
		return
	default:
	}

	details := map[string]any{}
	if reason != nil {
		details["code"] = reason.Code
		details["reason"] = reason.Reason
	}
	client.logger.Info(client.logCtx, "broker_link_lost", "Broker link lost, redialing", details)

	select {
	case client.lost <- struct{}{}:
	default:
	}
}

func (client *Client) redialLoop() {
	for {
		select {
		case <-client.closed:
			return
		case <-client.lost:
		}

		backoff := time.Second
		for attempt := 1; ; attempt++ {
			err := client.dial()
			if err == nil {
				client.logger.Info(client.logCtx, "broker_reconnected", "Broker link restored", map[string]any{"attempts": attempt})
				break
			}
			if errors.Is(err, errClientClosed) {
				return
			}

			client.logger.Error(client.logCtx, "broker_reconnect_failed", "Broker redial failed", err, map[string]any{
				"attempt": attempt,
				"backoff": backoff.String(),
			})

			timer := time.NewTimer(backoff)
			select {
			case <-client.closed:
				timer.Stop()
				return
			case <-timer.C:
			}
			backoff = min(backoff*2, client.opts.MaxBackoff)
		}
	}
}
