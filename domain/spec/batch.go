package spec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"hypocycle/domain/core"
)

// IDs returns the sample ids of a batch in batch order.
func IDs(batch []SampleSpecification) []core.SampleID {
	ids := make([]core.SampleID, len(batch))
	for i, s := range batch {
		ids[i] = s.SampleID
	}
	return ids
}

// ValidateBatch checks every spec independently, then the batch invariants:
// unique sample ids and identical fields apart from sample_id, ordinal and
// the varying field.
func ValidateBatch(batch []SampleSpecification, varyingField string) error {
	seen := make(map[core.SampleID]int, len(batch))
	for i, s := range batch {
		if err := Validate(s); err != nil {
			return fmt.Errorf("spec %d (%s): %w", i, s.SampleID, err)
		}
		if j, dup := seen[s.SampleID]; dup {
			return core.NewSchemaViolation(fmt.Sprintf("[%d].sample_id", i),
				"sample_id unique within the batch", fmt.Sprintf("%s (duplicate of [%d])", s.SampleID, j))
		}
		seen[s.SampleID] = i
	}
	return SharedExcept(batch, varyingField)
}

// SharedExcept reports a violation if any two specs differ in a field other
// than sample_id, ordinal and varyingField.
func SharedExcept(batch []SampleSpecification, varyingField string) error {
	if len(batch) < 2 {
		return nil
	}
	base, err := normalized(batch[0], varyingField)
	if err != nil {
		return err
	}
	for i := 1; i < len(batch); i++ {
		other, err := normalized(batch[i], varyingField)
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(base, other) {
			return core.NewSchemaViolation(fmt.Sprintf("[%d]", i),
				fmt.Sprintf("identical to [0] except sample_id and %s", varyingField), string(batch[i].SampleID))
		}
	}
	return nil
}

func normalized(s SampleSpecification, varyingField string) (SampleSpecification, error) {
	out, err := s.WithParameter(varyingField, 0)
	if err != nil {
		return SampleSpecification{}, err
	}
	out.SampleID = ""
	out.Ordinal = 0
	return out, nil
}

// Fingerprint hashes the canonical JSON encoding of a batch. Identical batches
// always share a fingerprint.
func Fingerprint(batch []SampleSpecification) (core.Hash, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}
	return core.NewHash(data), nil
}

// Ordinals maps each sample id of a batch to its ordinal.
func Ordinals(batch []SampleSpecification) map[core.SampleID]int {
	out := make(map[core.SampleID]int, len(batch))
	for _, s := range batch {
		out[s.SampleID] = s.Ordinal
	}
	return out
}
