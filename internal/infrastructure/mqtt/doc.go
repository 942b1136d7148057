// Package mqtt provides MQTT client connectivity for VendLink Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// VendLink uses MQTT as the transport between field devices (vending and
// dispenser units) and the bridge. The broker decouples the bridge from the
// devices' network conditions:
//
//	Devices ↔ MQTT Broker ↔ VendLink Core ↔ HTTP observers
//
// Devices report state on devices/{deviceId}/state and receive commands on
// devices/{deviceId}/cmd, both at QoS 1 (at-least-once). Duplicate delivery
// is absorbed by the bridge's last-write-wins state semantics.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device state reports
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.DeviceCommand("dev-001")
//	client.Publish(topic, []byte(`{"output":"on"}`), 1, false)
package mqtt
