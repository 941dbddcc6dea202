package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// SampleID identifies one experimental unit and joins specs with results.
	SampleID ID
	// CycleID identifies one hypothesis -> specs -> results -> verdict pass.
	CycleID ID
)

func (id SampleID) String() string { return ID(id).String() }
func (id CycleID) String() string  { return ID(id).String() }

// IsEmpty checks if the sample ID is empty
func (id SampleID) IsEmpty() bool { return id == "" }

// IsEmpty checks if the cycle ID is empty
func (id CycleID) IsEmpty() bool { return id == "" }

// NewCycleID creates a fresh, time-ordered cycle identifier
func NewCycleID() CycleID {
	return CycleID(NewID())
}

// NewSampleID builds "<prefix>_<seq>" with a 1-based sequence number.
func NewSampleID(prefix string, seq int) SampleID {
	return SampleID(fmt.Sprintf("%s_%d", prefix, seq))
}

// Namespaced prefixes a sample ID with the cycle ID so results from
// concurrent cycles never collide in a shared store.
func (id SampleID) Namespaced(cycle CycleID) string {
	if cycle.IsEmpty() {
		return string(id)
	}
	return cycle.String() + "/" + string(id)
}

// ParseSampleID parses a string into SampleID
func ParseSampleID(s string) (SampleID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("sample ID cannot be empty")
	}
	return SampleID(s), nil
}

// ParseCycleID parses a string into CycleID
func ParseCycleID(s string) (CycleID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("cycle ID cannot be empty")
	}
	return CycleID(s), nil
}
