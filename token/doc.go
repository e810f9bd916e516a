// Package token issues and verifies the signed session token pair: a
// short-lived access token presented on every request and a longer-lived
// refresh token used only to mint new access tokens.
//
// Tokens are HMAC-SHA256 signed claim sets. There is no server-side session
// store and no revocation list: validity is purely cryptographic (signature
// plus expiry), logout is a client-side cookie discard, and a leaked access
// token stays valid until its expiry. That statelessness is a deliberate
// trade-off; forced revocation before expiry is a known limitation.
package token
