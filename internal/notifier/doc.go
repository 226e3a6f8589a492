// Package notifier delivers availability alerts and announcements to the
// configured chat channel.
//
// Delivery is synchronous and best-effort: Send returns the error so the caller
// can log it, and nothing retries. A token bucket keeps bursts of alerts under
// the chat platform's rate limits.
//
// # History
//
// For operator visibility, the service keeps a small in-memory history of
// recent sends. Alerts are also appended to the storage audit when one is
// configured.
package notifier
