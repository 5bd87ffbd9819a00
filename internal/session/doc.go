// Package session manages the lifetime of an exchange stream session:
// connect, authenticate, subscribe, and keep it all alive.
//
// A session moves through a small state machine (Idle, Connecting,
// Authenticating, Subscribing, Active, Degraded, Closed). Liveness is probed
// with heartbeats, health is verified by a monitor loop, and every
// registered subscription is replayed after each reconnect so consumers
// never resubscribe by hand. Recovery is single-flight with a linear backoff
// ramp; an exhausted sequence leaves the session degraded until the next
// fault or health check starts a fresh one.
package session
