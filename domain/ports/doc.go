// Package ports defines interfaces for infrastructure operations.
// Manifest decoding and validation live behind these ports so the host can
// swap formats without touching the plugin manager.
package ports
