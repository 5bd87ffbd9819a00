// Package model defines shared data types used across the streamer.
//
// Conventions:
//   - Timestamps: int64 microseconds since Unix epoch
//   - Prices and matched volume: decimal odds / currency as reported by the exchange
//   - IDs: exchange-assigned strings for markets, int64 for runner selections
package model
