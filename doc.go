// Package hapticbridge connects an ambient haptic device to a work-signal
// bus. It is the client half of a WebSocket device-control protocol plus a
// small presence state machine on top.
//
// # Architecture
//
// The module is organised around a single data path:
//
//	NATS work signal -> presence.Controller -> client.Client -> device server
//
// Packages:
//
//   - protocol: wire codec and message types for the device-control
//     protocol (JSON frames in single-element arrays), plus descriptor
//     parsing into typed capabilities.
//   - client: connection manager, request correlator, device registry,
//     and the actuation layer (vibrate, rotate, linear, stop, battery).
//   - presence: the edge-triggered presence state machine; non-zero work
//     signals start ambient vibration, zero stops it.
//   - signal: NATS bridge feeding work-signal samples into the presence
//     controller and publishing state snapshots.
//   - config: file- and environment-driven configuration.
//   - metric: Prometheus registry and HTTP endpoint.
//   - errors: error classification (transient, invalid, fatal) and
//     domain sentinel errors.
//
// # Concurrency
//
// The client runs one read-loop goroutine per connection. The device
// registry and the pending-request table are guarded by the client mutex;
// request/response correlation uses per-request channels keyed by message
// id. Concurrent Connect calls coalesce onto a single dial and handshake.
//
// # Usage
//
//	c, err := client.NewClient("ws://127.0.0.1:12345",
//		client.WithClientName("myapp"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := c.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer c.Disconnect()
//	_ = c.Vibrate(ctx, 0, 0.5)
package hapticbridge
