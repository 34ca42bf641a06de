// Package metrics exposes Prometheus collectors for the session, the request
// gateway and the realtime channel, plus the health and readiness handlers
// served on the local ops listener.
//
// Metrics implements session.Observer, gateway.Observer and
// realtime.Observer, so one instance is handed to all three.
package metrics
