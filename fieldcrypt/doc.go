// Package fieldcrypt implements field-level encryption for data at rest.
//
// Values are encrypted with AES-256-GCM under a per-value key derived from
// the master key and a fresh random salt, so two encryptions of the same
// plaintext never produce the same envelope. The deterministic search hash
// makes an encrypted column look-up-able by exact value without decrypting
// rows.
package fieldcrypt
