// Package mqtt provides MQTT client connectivity for the propcore mirror.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// Core events of registry objects are mirrored to the broker, and remote
// peers push update documents back through it:
//
//	Registry ─ core events ─► Mirror ─► {prefix}/event/{id}/{event}
//	Registry ◄─ Update(doc) ─ Mirror ◄─ {prefix}/update/{id}
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: cfg.Mirror.TopicPrefix}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
package mqtt
