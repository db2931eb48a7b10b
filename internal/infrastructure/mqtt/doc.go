// Package mqtt provides the broker connection used to mirror orchestra
// events onto MQTT.
//
// This package manages:
//   - Connection to a broker with auto-reconnect
//   - Publishing with QoS and size validation
//   - Last Will and Testament (LWT) for offline detection
//   - The orchestra topic tree (see Topics)
//
// # Architecture
//
//	events.Bus → relay.MQTTRelay → mqtt.Client → Broker → dashboards, loggers
//
// Traffic is outbound only. Device commands never arrive over MQTT.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().Event("fake_cam", "device.data")
//	err = client.Publish(topic, payload, client.QoS(), false)
package mqtt
