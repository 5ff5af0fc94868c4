// Package mqtt provides MQTT connectivity for Fox Bridge.
//
// MQTT is optional. When enabled, the bridge publishes a retained status
// message per tenant, a delivery event for every bill it sends, and its own
// online/offline state (with a Last Will for crashes). It also listens for
// initialize/reset commands so back-office tooling can drive sessions without
// the HTTP API.
//
// Topic layout (prefix defaults to "foxbridge"):
//
//	foxbridge/system/status                 retained, bridge online/offline
//	foxbridge/tenant/{tenant}/status        retained, derived session status
//	foxbridge/tenant/{tenant}/delivery      delivery results
//	foxbridge/command/{tenant}/{action}     inbound: initialize | reset
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	client.PublishRetained(topics.TenantStatus("r1"), payload)
package mqtt
