// Package canon provides the normalized local entity shapes that marketplace
// records are mapped onto before persistence.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import canon; canon imports nothing internal.
//
// Key design constraints:
//   - Marketplace identifiers are opaque (ID), never routed through float64
//   - Money is decimal.Decimal, never float64
//   - Timestamps are UTC time.Time; the zero value means "absent"
//   - Opaque structured payloads (images, attributes) are stored as canonical JSON
package canon
