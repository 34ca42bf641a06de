package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the encoded slot in process memory.
// It runs values through the same Codec as the durable backends.
type MemoryStore struct {
	codec Codec

	mu     sync.Mutex
	raw    []byte
	closed bool
}

// NewMemoryStore returns an empty in-memory slot.
func NewMemoryStore(codec Codec) *MemoryStore {
	return &MemoryStore{codec: codec}
}

func (s *MemoryStore) Load(_ context.Context) (Pair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Pair{}, false, ErrClosed
	}
	if s.raw == nil {
		return Pair{}, false, nil
	}
	p, err := s.codec.decode(s.raw)
	if err != nil {
		return Pair{}, false, err
	}
	return p, true, nil
}

func (s *MemoryStore) Save(_ context.Context, p Pair) error {
	b, err := s.codec.encode(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.raw = b
	return nil
}

func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.raw = nil
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Raw returns the encoded slot contents (nil when empty).
func (s *MemoryStore) Raw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw == nil {
		return nil
	}
	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out
}

// SetRaw overwrites the encoded slot, bypassing the codec.
func (s *MemoryStore) SetRaw(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = append([]byte(nil), b...)
}
