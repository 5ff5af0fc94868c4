// Package notify fans session changes and bill deliveries out to the
// event log, MQTT and InfluxDB, and routes MQTT commands back into the
// session controller.
//
// Every sink implements session.Observer and dispatch.DeliveryObserver.
// Sink failures are logged and never propagate to the caller.
package notify
