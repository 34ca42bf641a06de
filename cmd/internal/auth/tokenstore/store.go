package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Jerit-Baiju/caelium-admin/cmd/security/sealer"
)

// SlotName is the single slot every backend reads and writes.
const SlotName = "authTokens"

// Pair is the stored credential pair.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Validate reports ErrPartialPair unless both halves are present.
func (p Pair) Validate() error {
	if strings.TrimSpace(p.Access) == "" || strings.TrimSpace(p.Refresh) == "" {
		return ErrPartialPair
	}
	return nil
}

// IsZero reports whether neither half is set.
func (p Pair) IsZero() bool {
	return p.Access == "" && p.Refresh == ""
}

// Store is the durable slot holding the current credential pair.
type Store interface {
	// Load returns the stored pair. found is false when the slot is empty.
	Load(ctx context.Context) (p Pair, found bool, err error)
	// Save replaces the slot wholesale.
	Save(ctx context.Context, p Pair) error
	// Delete empties the slot. Deleting an empty slot is not an error.
	Delete(ctx context.Context) error
	Close() error
}

// Codec turns a Pair into the bytes a backend stores and back.
// The zero value stores plain JSON.
type Codec struct {
	seal       sealer.Config
	passphrase string
}

// PlainCodec stores unsealed JSON.
func PlainCodec() Codec { return Codec{} }

// SealedCodec seals the JSON with passphrase. The passphrase is checked
// against cfg's policy up front.
func SealedCodec(cfg sealer.Config, passphrase string) (Codec, error) {
	if err := cfg.Validate(passphrase); err != nil {
		return Codec{}, fmt.Errorf("seal passphrase: %w", err)
	}
	return Codec{seal: cfg, passphrase: passphrase}, nil
}

// Sealed reports whether values are sealed at rest.
func (c Codec) Sealed() bool { return c.passphrase != "" }

func (c Codec) encode(p Pair) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if !c.Sealed() {
		return b, nil
	}
	s, err := c.seal.Seal(c.passphrase, b)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return []byte(s), nil
}

func (c Codec) decode(raw []byte) (Pair, error) {
	if c.Sealed() {
		if !sealer.IsSealed(string(raw)) {
			return Pair{}, fmt.Errorf("%w: expected sealed value", ErrCorrupt)
		}
		b, err := c.seal.Open(c.passphrase, string(raw))
		if err != nil {
			return Pair{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		raw = b
	}

	var p Pair
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := p.Validate(); err != nil {
		return Pair{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return p, nil
}
