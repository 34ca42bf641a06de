package sealer

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	scheme        = "xc20p"
	formatVersion = 1
)

// Seal encrypts plaintext under a key derived from passphrase.
// Format:
// $xc20p$v=1$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<nonce||ciphertext b64>
func (c Config) Seal(passphrase string, plaintext []byte) (string, error) {
	if err := c.Validate(passphrase); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	aead, err := newAEAD(passphrase, salt, c.Params)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	box := aead.Seal(nonce, nonce, plaintext, header(c.Params))

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		scheme,
		formatVersion,
		c.Params.MemoryKiB,
		c.Params.Iterations,
		c.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(box),
	), nil
}

// Open reverses Seal. A wrong passphrase and a tampered value both return
// ErrOpenFailed; a structurally broken value returns ErrInvalidSealed.
func (c Config) Open(passphrase, encoded string) ([]byte, error) {
	params, salt, box, err := decode(encoded)
	if err != nil {
		return nil, err
	}
	if !withinReasonableBounds(params, c.Params) {
		return nil, ErrInvalidSealed
	}

	aead, err := newAEAD(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	if len(box) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidSealed
	}

	nonce, ct := box[:aead.NonceSize()], box[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, header(params))
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

// IsSealed reports whether s looks like a value produced by Seal.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, "$"+scheme+"$")
}

func newAEAD(passphrase string, salt []byte, p Argon2idParams) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, p.Iterations, p.MemoryKiB, p.Parallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return aead, nil
}

// header binds the cost parameters into the AEAD tag.
func header(p Argon2idParams) []byte {
	return []byte(fmt.Sprintf("%s;v=%d;m=%d,t=%d,p=%d", scheme, formatVersion, p.MemoryKiB, p.Iterations, p.Parallelism))
}

func withinReasonableBounds(got, limits Argon2idParams) bool {
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if uint32(got.Parallelism) > uint32(limits.Parallelism)*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	return true
}

func decode(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != scheme {
		return Argon2idParams{}, nil, nil, ErrInvalidSealed
	}
	if parts[2] != fmt.Sprintf("v=%d", formatVersion) {
		return Argon2idParams{}, nil, nil, ErrInvalidSealed
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidSealed
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidSealed
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidSealed
	}
	box, err := b64.DecodeString(parts[5])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidSealed
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),        // #nosec G115 -- bounded above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- base64 field of a short string.
	}, salt, box, nil
}
