// Package detect computes mechanical field-level diffs between successive
// extracted states. Whether a change is worth alerting on is decided
// elsewhere; this package only answers "what changed".
package detect

import (
	"github.com/use-agent/haunt/models"
)

// Diff compares the previous extracted state against the current one.
//
// An empty previous state means this is the target's first-ever extraction:
// every current field is reported as changed with old = nil. Otherwise the
// union of both key sets is compared; a key present on only one side is
// compared against nil. hasChanges is true iff the change set is non-empty.
func Diff(previous, current models.ExtractedState) (bool, models.ChangeSet) {
	changes := make(models.ChangeSet)

	if len(previous) == 0 {
		for key, val := range current {
			changes[key] = models.ValueChange{Old: nil, New: val}
		}
		return len(changes) > 0, changes
	}

	for key, oldVal := range previous {
		newVal := current[key]
		if !ValuesEqual(oldVal, newVal) {
			changes[key] = models.ValueChange{Old: oldVal, New: newVal}
		}
	}
	for key, newVal := range current {
		if _, seen := previous[key]; seen {
			continue
		}
		if !ValuesEqual(nil, newVal) {
			changes[key] = models.ValueChange{Old: nil, New: newVal}
		}
	}

	return len(changes) > 0, changes
}

// ValuesEqual compares two extracted values with type-aware equality: a
// string is never equal to a number ("1" != 1), but int64 and float64 forms
// of the same quantity are equal: states round-tripped through stored JSON
// come back with float64 where the pipeline produced int64.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aNum := asFloat(a); aNum {
		bf, bNum := asFloat(b)
		return bNum && af == bf
	}
	if _, bNum := asFloat(b); bNum {
		return false
	}
	// Extracted values are only ever strings or bools past this point.
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
