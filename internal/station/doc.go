// Package station is the Z21 LAN protocol engine.
//
// Ownership boundary:
// - inbound packet delivery: framing, session refresh, command dispatch
// - direct replies and broadcast fan-out through a Transport
// - push operations the railway domain uses to report state changes
// - the periodic liveness tick
//
// Railway-domain behavior lives behind Hooks; the station only routes.
package station
