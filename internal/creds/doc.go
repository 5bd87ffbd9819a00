// Package creds fetches session tokens from the exchange identity service.
//
// The stream handshake needs a short-lived session token alongside the
// application key. IdentityClient performs the interactive login and hands
// the token back. It does not cache tokens, so every reconnect authenticates
// with one the identity service just issued.
package creds
