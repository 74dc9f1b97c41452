package checkpoint

import (
	"sort"

	"github.com/gomlx/gomlx/pkg/core/shapes"
)

// Mismatch is a mapped tensor whose checkpoint shape differs from the variable.
type Mismatch struct {
	Name string
	Got  shapes.Shape
	Want shapes.Shape
}

// Report compares a checkpoint with a weight mapping.
type Report struct {
	// Matched tensors are mapped and have the expected dimensions.
	Matched []string

	// Missing tensors are mapped but absent from the checkpoint.
	Missing []string

	// Mismatched tensors are present with other dimensions.
	Mismatched []Mismatch

	// Unused tensors are in the checkpoint but not in the mapping.
	Unused []string
}

// OK reports whether every mapped tensor is present with the expected dimensions.
func (r *Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Mismatched) == 0
}

// Verify checks f against mapping (tensor name to scope path) and the expected
// variable shapes keyed by scope path. Dtypes are not compared: weights are
// converted when loaded.
func Verify(f *File, mapping map[string]string, expected map[string]shapes.Shape) *Report {
	r := &Report{}
	for name, scope := range mapping {
		got, ok := f.TensorShape(name)
		if !ok {
			r.Missing = append(r.Missing, name)
			continue
		}
		want, known := expected[scope]
		if known && !sameDimensions(got, want) {
			r.Mismatched = append(r.Mismatched, Mismatch{Name: name, Got: got, Want: want})
			continue
		}
		r.Matched = append(r.Matched, name)
	}
	for _, name := range f.ListTensorNames() {
		if _, ok := mapping[name]; !ok {
			r.Unused = append(r.Unused, name)
		}
	}

	sort.Strings(r.Matched)
	sort.Strings(r.Missing)
	sort.Slice(r.Mismatched, func(i, j int) bool { return r.Mismatched[i].Name < r.Mismatched[j].Name })
	return r
}

func sameDimensions(a, b shapes.Shape) bool {
	if a.Rank() != b.Rank() {
		return false
	}
	for i, d := range a.Dimensions {
		if b.Dimensions[i] != d {
			return false
		}
	}
	return true
}
