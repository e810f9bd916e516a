// Package internal holds code generation and hashing helpers shared by the
// engine. Not part of the public API.
package internal
