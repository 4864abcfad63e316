package flow

import (
	"fmt"
	"reflect"
)

// Reducer merges a partial state update (delta) into the previous state.
//
// Reducers must be deterministic: applying the same ordered sequence of
// deltas always yields the same state, no matter how many times the
// session was suspended and resumed in between. Resumption is pure
// continuation, never re-derivation.
//
// Most callers build a reducer from an explicit merge-policy table via
// Policies.Reducer rather than writing one by hand.
type Reducer[S any] func(prev, delta S) S

// Policy is the merge rule for one state field.
type Policy int

const (
	// Replace overwrites the previous value when the delta carries one.
	// A delta field "carries" a value when it is non-zero: a non-nil
	// pointer, a non-empty string, a non-zero number, a non-nil map.
	// Use pointer fields for scalars where the zero value is meaningful
	// (e.g., *bool for an approval that can legitimately be false).
	Replace Policy = iota

	// Append concatenates the delta's slice onto the previous slice,
	// preserving insertion order. Duplicates are allowed. An empty delta
	// slice leaves the field untouched.
	Append
)

// String returns the policy name for error messages and logs.
func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Policies is a validated per-field merge-policy table for state type S.
//
// The table is the single place where field merge semantics live; the
// engine evaluates it generically and never inspects state shapes itself.
// Build one with NewPolicies, which validates the table against S's
// struct definition once, up front. A table that doesn't fit S is a
// programming bug surfaced as ContractViolation at construction, not a
// per-call runtime error.
type Policies[S any] struct {
	fields []policyField
}

// policyField binds a struct field index path to its merge policy. The
// path has more than one element for fields promoted from an embedded
// struct.
type policyField struct {
	name   string
	index  []int
	policy Policy
}

// NewPolicies validates a field-name-to-policy table against S and returns
// the compiled Policies.
//
// Validation rules:
//   - S must be a struct type
//   - every named field must exist on S and be exported
//   - Append fields must be slices
//
// Fields of S not named in the table are never touched by the reducer;
// deltas cannot modify them.
//
// Example:
//
//	policies, err := flow.NewPolicies[ReviewState](map[string]flow.Policy{
//	    "Summary":  flow.Replace,
//	    "Footguns": flow.Append,
//	})
//	if err != nil {
//	    log.Fatal(err) // table doesn't fit the state type: fix the code
//	}
//	reducer := policies.Reducer()
func NewPolicies[S any](table map[string]Policy) (Policies[S], error) {
	var zero Policies[S]

	st := reflect.TypeOf((*S)(nil)).Elem()
	if st.Kind() != reflect.Struct {
		return zero, &ContractViolation{
			Field:  st.String(),
			Reason: "state type must be a struct",
		}
	}

	fields := make([]policyField, 0, len(table))
	for name, policy := range table {
		sf, ok := st.FieldByName(name)
		if !ok {
			return zero, &ContractViolation{
				Field:  name,
				Reason: "no such field on " + st.String(),
			}
		}
		if sf.PkgPath != "" {
			return zero, &ContractViolation{
				Field:  name,
				Reason: "field is unexported",
			}
		}
		if policy == Append && sf.Type.Kind() != reflect.Slice {
			return zero, &ContractViolation{
				Field:  name,
				Reason: "append policy requires a slice field, got " + sf.Type.String(),
			}
		}
		if policy != Replace && policy != Append {
			return zero, &ContractViolation{
				Field:  name,
				Reason: "unknown policy " + policy.String(),
			}
		}
		// Promotion through an embedded pointer would make the reducer
		// dereference a possibly-nil pointer on every delta.
		walk := st
		for _, i := range sf.Index[:len(sf.Index)-1] {
			ft := walk.Field(i).Type
			if ft.Kind() == reflect.Pointer {
				return zero, &ContractViolation{
					Field:  name,
					Reason: "field is promoted through an embedded pointer",
				}
			}
			walk = ft
		}
		fields = append(fields, policyField{
			name:   name,
			index:  sf.Index,
			policy: policy,
		})
	}

	// Deterministic evaluation order regardless of map iteration.
	sortPolicyFields(fields)

	return Policies[S]{fields: fields}, nil
}

// sortPolicyFields orders fields by struct index path (declaration order,
// embedded fields in place).
func sortPolicyFields(fields []policyField) {
	for i := 1; i < len(fields); i++ {
		for j := i; j > 0 && lessIndexPath(fields[j].index, fields[j-1].index); j-- {
			fields[j], fields[j-1] = fields[j-1], fields[j]
		}
	}
}

func lessIndexPath(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Reducer builds the generic merge function for this policy table.
//
// For each field in the table:
//   - Replace: the delta value overwrites the previous value when the
//     delta field is non-zero; a zero delta field means "absent" and
//     leaves the previous value untouched.
//   - Append: the delta slice is concatenated after the previous slice,
//     preserving order.
//
// Fields of S not present in the table are carried over from prev
// unchanged.
func (p Policies[S]) Reducer() Reducer[S] {
	return func(prev, delta S) S {
		pv := reflect.ValueOf(&prev).Elem()
		dv := reflect.ValueOf(delta)

		for _, f := range p.fields {
			dfield := dv.FieldByIndex(f.index)
			pfield := pv.FieldByIndex(f.index)

			switch f.policy {
			case Append:
				if dfield.Len() > 0 {
					pfield.Set(reflect.AppendSlice(pfield, dfield))
				}
			case Replace:
				if !dfield.IsZero() {
					pfield.Set(dfield)
				}
			}
		}

		return prev
	}
}
