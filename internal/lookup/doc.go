// Package lookup resolves printed machine codes to device identifiers, with
// optional HMAC signature verification for QR-embedded links.
package lookup
