// Package password implements password hashing and verification with
// Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// so cost parameters travel with the stored hash. This package owns hashing
// and verification only; password policy and account lookups are enforced
// by the Engine.
package password
