// Package instrumentation provides OpenTelemetry metrics for the
// credential lifecycle core: authorization-code issuance and redemption,
// token minting, rotation, revocation, global logout, and storage
// operation latency.
//
// When disabled, no-op providers are used and recording has zero
// overhead.
package instrumentation
