package rng

import (
	"context"
	"math/rand"

	"hypocycle/ports"
)

var _ ports.RNGPort = (*Source)(nil)

// Source implements ports.RNGPort. Streams are derived from the seed and
// the stream name, so two named streams with one seed never share a sequence.
type Source struct{}

// NewSource creates a seeded stream factory
func NewSource() *Source {
	return &Source{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (s *Source) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != "" {
		seed += int64(hashString(name))
	}
	return rand.New(rand.NewSource(seed)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
