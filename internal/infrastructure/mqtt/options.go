package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vendlink/vendlink-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Offline status reasons published on the bridge status topic.
const (
	reasonGracefulShutdown     = "graceful_shutdown"
	reasonUnexpectedDisconnect = "unexpected_disconnect"
)

// statusPayload is the wire form of bridge status messages, including the
// broker-published LWT. Retained on vendlink/bridge/status so dashboards and
// devices always see the bridge's last known state.
type statusPayload struct {
	Status     string `json:"status"`
	ClientID   string `json:"client_id"`
	Reason     string `json:"reason,omitempty"`
	Reconnects uint64 `json:"reconnects,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func (p statusPayload) encode() []byte {
	p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(p)
	if err != nil {
		// statusPayload contains only marshal-safe fields.
		panic(fmt.Sprintf("encoding status payload: %v", err))
	}
	return data
}

func onlineStatusPayload(clientID string, reconnects uint64) []byte {
	return statusPayload{
		Status:     "online",
		ClientID:   clientID,
		Reconnects: reconnects,
	}.encode()
}

func offlineStatusPayload(clientID, reason string) []byte {
	return statusPayload{
		Status:   "offline",
		ClientID: clientID,
		Reason:   reason,
	}.encode()
}

// buildClientOptions creates paho MQTT options from VendLink config:
// broker URL (tcp or ssl), credentials, clean session, auto-reconnect with
// bounded backoff, keepalive, and the Last Will and Testament that marks the
// bridge offline if it drops without a graceful shutdown.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Start fresh on connect; the wrapper restores subscriptions itself, so
	// no persistent broker session is wanted.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	// LWT: the broker publishes this if the client vanishes without Close().
	will := offlineStatusPayload(cfg.Broker.ClientID, reasonUnexpectedDisconnect)
	opts.SetBinaryWill(Topics{}.BridgeStatus(), will, 1, true)

	return opts
}
