// Package storage keeps an append-only audit of fired availability alerts.
//
// It is write-mostly: records are never read back into the monitor, so a
// restart always begins from an empty availability baseline.
package storage
