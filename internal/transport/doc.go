// Package transport implements the exchange stream connection.
//
// The stream speaks JSON operations over a WebSocket. The client sends
// authentication, marketSubscription, orderSubscription, and heartbeat ops;
// the server answers each with a status op correlated by request id, and
// pushes mcm (market change) and ocm (order change) data frames. Change
// payloads are passed through untouched; only the envelope is parsed.
//
// A Transport survives reconnects: Disconnect followed by Connect reuses the
// same Events and Errors channels, so a consumer keeps a single read loop
// across the life of the session.
package transport
