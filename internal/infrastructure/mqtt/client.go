package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vendlink/vendlink-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the bridge's needs: connection
// management, publishing, subscription tracking, and automatic reconnection
// with bounded backoff. Tracked subscriptions are restored after every
// reconnect so the device state stream survives broker hiccups without
// operator intervention, and each successful reconnect is counted and
// announced on the status topic.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	logger Logger

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state; everConnected distinguishes
	// the initial connect from reconnects.
	connected     bool
	everConnected bool
	connMu        sync.RWMutex

	// reconnects counts successful reconnections since startup.
	reconnects atomic.Uint64
}

// Logger is the logging surface the client needs. Satisfied by
// logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload (typically JSON)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS, LWT)
//  2. Sets up auto-reconnect with bounded backoff
//  3. Attempts initial connection with timeout
//  4. Publishes online status to vendlink/bridge/status
//
// A connection failure here is fatal for the caller: the bridge must not
// serve traffic with no transport behind it.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - logger: Logger for connection events and handler failures (may be nil)
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If initial connection fails within timeout
func Connect(cfg config.MQTTConfig, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Client{
		cfg:           cfg,
		logger:        logger,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler callback runs asynchronously and may not have
	// executed yet; set connected here so IsConnected() is true on return.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// handleConnect runs on the initial connect and every reconnect: it restores
// tracked subscriptions, publishes online status, and logs which of the two
// cases this was.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	reconnect := c.everConnected
	c.everConnected = true
	c.connMu.Unlock()

	restored := c.restoreSubscriptions()
	c.publishOnlineStatus()

	if reconnect {
		c.reconnects.Add(1)
		c.logger.Info("reconnected to broker",
			"reconnects", c.reconnects.Load(),
			"subscriptions_restored", restored,
		)
	} else {
		c.logger.Info("connected to broker",
			"broker", fmt.Sprintf("%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port),
			"client_id", c.cfg.Broker.ClientID,
		)
	}
}

// handleDisconnect is called when the connection is lost. Paho's
// auto-reconnect takes over from here.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.logger.Warn("broker connection lost", "error", err)
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect
// and returns how many it attempted. Individual resubscribe failures are
// left to the next reconnect cycle.
func (c *Client) restoreSubscriptions() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	return len(c.subscriptions)
}

// publishOnlineStatus publishes retained online status, including the
// reconnect count so dashboards can spot flapping connections.
func (c *Client) publishOnlineStatus() {
	payload := onlineStatusPayload(c.cfg.Broker.ClientID, c.reconnects.Load())
	c.client.Publish(Topics{}.BridgeStatus(), byte(c.cfg.QoS), true, payload)
}

// Reconnects returns how many times the client has reconnected since startup.
func (c *Client) Reconnects() uint64 {
	return c.reconnects.Load()
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes a graceful offline status (distinct from the LWT crash
// status), waits briefly for pending operations, then disconnects.
//
// Returns:
//   - error: If disconnect fails (connection already closed is not an error)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := offlineStatusPayload(c.cfg.Broker.ClientID, reasonGracefulShutdown)
		token := c.client.Publish(Topics{}.BridgeStatus(), byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
//
// Note: This reflects the last known state. For reliability,
// use HealthCheck which can perform an active test.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// getLogger returns the client's logger, tolerating zero-value Clients.
func (c *Client) getLogger() Logger {
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}
