// Package provenance computes stable digests of the provenance attached to
// every generated grid.
//
// Digests are SHA-256 over canonical JSON (RFC 8785 subset) with a domain
// prefix, so the same version map or runcard always yields the same hex
// string regardless of map iteration order or Unicode normalization form.
//
// Key design constraints:
//   - Only strings, string arrays and string maps are encoded
//   - Strings are NFC normalized before encoding
//   - Object keys are sorted by UTF-16 code units
package provenance
