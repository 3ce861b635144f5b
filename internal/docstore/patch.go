package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// OpKind is a field-level mutation.
type OpKind int

const (
	OpSet OpKind = iota
	OpIncrement
	OpArrayUnion
	OpArrayRemove
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpIncrement:
		return "increment"
	case OpArrayUnion:
		return "arrayUnion"
	case OpArrayRemove:
		return "arrayRemove"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// FieldOp mutates one top-level field.
type FieldOp struct {
	Kind   OpKind
	Field  string
	Value  any   // OpSet
	Delta  int64 // OpIncrement
	Floor  *int64
	Values []any  // OpArrayUnion, OpArrayRemove
	Guard  string // OpIncrement: array field that must have changed
}

// Patch is applied atomically: all ops or none.
type Patch []FieldOp

// SetField replaces a field.
func SetField(field string, value any) FieldOp {
	return FieldOp{Kind: OpSet, Field: field, Value: value}
}

// Increment adds delta to a numeric field. A missing field counts as zero.
func Increment(field string, delta int64) FieldOp {
	return FieldOp{Kind: OpIncrement, Field: field, Delta: delta}
}

// IncrementFloor is Increment clamped so the result never drops below floor.
func IncrementFloor(field string, delta, floor int64) FieldOp {
	return FieldOp{Kind: OpIncrement, Field: field, Delta: delta, Floor: &floor}
}

// When makes an increment apply only if an earlier op in the same patch
// changed the named array field. A union of a value already present, or a
// removal of one that is absent, leaves the count alone.
func (op FieldOp) When(array string) FieldOp {
	op.Guard = array
	return op
}

// ArrayUnion appends each value not already present (deep equality).
func ArrayUnion(field string, values ...any) FieldOp {
	return FieldOp{Kind: OpArrayUnion, Field: field, Values: values}
}

// ArrayRemove removes every element equal to any of values.
func ArrayRemove(field string, values ...any) FieldOp {
	return FieldOp{Kind: OpArrayRemove, Field: field, Values: values}
}

// apply mutates body in place.
func (p Patch) apply(body map[string]any) error {
	changed := make(map[string]bool)
	for _, op := range p {
		if err := validField(op.Field); err != nil {
			return err
		}
		switch op.Kind {
		case OpSet:
			v, err := normalize(op.Value)
			if err != nil {
				return fmt.Errorf("%s %s: %w", op.Kind, op.Field, err)
			}
			body[op.Field] = v

		case OpIncrement:
			if op.Guard != "" && !changed[op.Guard] {
				continue
			}
			var cur float64
			switch v := body[op.Field].(type) {
			case nil:
			case float64:
				cur = v
			default:
				return fmt.Errorf("%s %s: field is %T, not a number", op.Kind, op.Field, v)
			}
			next := cur + float64(op.Delta)
			if op.Floor != nil && next < float64(*op.Floor) {
				next = float64(*op.Floor)
			}
			body[op.Field] = next

		case OpArrayUnion, OpArrayRemove:
			arr, err := arrayField(body, op.Field)
			if err != nil {
				return fmt.Errorf("%s %s: %w", op.Kind, op.Field, err)
			}
			before := len(arr)
			for _, raw := range op.Values {
				v, err := normalize(raw)
				if err != nil {
					return fmt.Errorf("%s %s: %w", op.Kind, op.Field, err)
				}
				if op.Kind == OpArrayUnion {
					if !containsDeep(arr, v) {
						arr = append(arr, v)
					}
					continue
				}
				kept := arr[:0]
				for _, el := range arr {
					if !reflect.DeepEqual(el, v) {
						kept = append(kept, el)
					}
				}
				arr = kept
			}
			if len(arr) != before {
				changed[op.Field] = true
			}
			body[op.Field] = arr

		default:
			return fmt.Errorf("unknown op %s on %s", op.Kind, op.Field)
		}
	}
	return nil
}

func arrayField(body map[string]any, field string) ([]any, error) {
	switch v := body[field].(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("field is %T, not an array", v)
	}
}

func containsDeep(arr []any, v any) bool {
	for _, el := range arr {
		if reflect.DeepEqual(el, v) {
			return true
		}
	}
	return false
}

// normalize converts a Go value into its generic JSON shape so structs,
// maps and primitives compare by value against decoded document fields.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
