// Package protocol converts between the canonical wire format used by all
// callers and each source's native symbol, granularity and timestamp
// conventions. Every function here is pure: conversion is driven entirely by
// declared per-source tables, never by guessing.
package protocol

// TimeUnit is a source's declared timestamp unit.
type TimeUnit string

const (
	UnitSeconds TimeUnit = "s"
	UnitMillis  TimeUnit = "ms"
)

// Format declares how a source spells symbols, granularities and timestamps.
// Each adapter owns exactly one Format.
type Format struct {
	// Separator is placed between base and quote ("" for BTCUSDT,
	// "-" for BTC-USDT).
	Separator string
	// TimeUnit is the unit of timestamps in the source's responses and
	// request parameters.
	TimeUnit TimeUnit
	// BaseAliases renames base currencies (kraken: BTC -> XBT).
	BaseAliases map[string]string
	// QuoteAliases renames quote currencies (coinbase: USDT -> USD).
	QuoteAliases map[string]string
	// CoinIDs maps base currencies to opaque identifiers for sources that
	// do not use pair symbols at all (coingecko: BTC -> bitcoin). When a
	// symbol resolves through CoinIDs the separator and quote are ignored.
	CoinIDs map[string]string
	// Granularities maps canonical granularities to the source's native
	// spelling. Absence of a key means the source cannot serve that
	// granularity natively.
	Granularities map[string]string
}
