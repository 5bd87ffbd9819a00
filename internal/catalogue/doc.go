// Package catalogue discovers markets through the exchange REST API and
// periodically snapshots their order books.
//
// Client wraps the betting endpoints with retry, rate limiting, and
// cursor pagination. Poller drives discovery on a fixed interval: it
// lists every market matching the configured filters, persists the
// catalogue rows through a Sink, then fans out book fetches with
// bounded concurrency.
package catalogue
