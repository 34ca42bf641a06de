// Package sealer protects the stored credential pair at rest.
//
// A passphrase is stretched with Argon2id (fresh salt per seal) into a 256-bit
// key that drives XChaCha20-Poly1305. The sealed value is a PHC-like string:
//
//	$xc20p$v=1$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<nonce||ciphertext b64>
//
// Sealed strings are treated as untrusted input on Open: parameters outside
// reasonable bounds are refused before any key derivation runs.
package sealer
