// Package influxdb provides InfluxDB connectivity for foxbridge.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, health monitoring and batched, non-blocking point writes.
//
// # Measurements
//
//   - session_transitions: one point per session state change, tagged by
//     tenant, from/to state and reason.
//   - deliveries: one point per media delivery attempt, tagged by tenant
//     and outcome, with byte count and duration fields.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTransition("r1", "creating", "pairing_required", "qr", time.Now())
//
// Writes are dropped when the client is not connected. Failed batches are
// logged and counted by WriteErrors.
package influxdb
