// Package domain describes the attributes of a tabular dataset.
package domain

import (
	"math"
	"math/rand/v2"

	"github.com/inferloop/gsd/pkg/constants"
	"github.com/inferloop/gsd/pkg/errors"
)

// AttributeType is the kind of values an attribute holds.
type AttributeType string

const (
	Categorical AttributeType = constants.AttributeCategorical
	Ordinal     AttributeType = constants.AttributeOrdinal
	Numerical   AttributeType = constants.AttributeNumerical
)

// Attribute is a single column of the schema. Discrete attributes take
// integer codes in [0, Size). Numerical attributes have Size 1 and take
// values in [0, 1].
type Attribute struct {
	Name string        `json:"name" mapstructure:"name"`
	Type AttributeType `json:"type" mapstructure:"type"`
	Size int           `json:"size" mapstructure:"size"`
}

// IsDiscrete reports whether the attribute holds integer codes.
func (a Attribute) IsDiscrete() bool {
	return a.Type != Numerical
}

// Schema is an ordered, immutable set of attributes.
type Schema struct {
	attrs []Attribute
	index map[string]int
}

// New validates the attributes and builds a schema.
func New(attrs ...Attribute) (*Schema, error) {
	if len(attrs) == 0 {
		return nil, errors.ErrInvalidSchema.WithDetails("schema has no attributes")
	}

	s := &Schema{
		attrs: make([]Attribute, len(attrs)),
		index: make(map[string]int, len(attrs)),
	}
	for i, a := range attrs {
		if a.Name == "" {
			return nil, errors.ErrInvalidSchema.Detailf("attribute %d has no name", i)
		}
		if _, dup := s.index[a.Name]; dup {
			return nil, errors.ErrInvalidSchema.Detailf("duplicate attribute %q", a.Name)
		}
		switch a.Type {
		case Categorical, Ordinal:
			if a.Size < 2 {
				return nil, errors.ErrInvalidSchema.Detailf("discrete attribute %q needs size >= 2, got %d", a.Name, a.Size)
			}
		case Numerical:
			if a.Size != 1 {
				return nil, errors.ErrInvalidSchema.Detailf("numerical attribute %q must have size 1, got %d", a.Name, a.Size)
			}
		default:
			return nil, errors.ErrInvalidSchema.Detailf("attribute %q has unknown type %q", a.Name, a.Type)
		}
		s.attrs[i] = a
		s.index[a.Name] = i
	}
	return s, nil
}

// Len returns the number of attributes.
func (s *Schema) Len() int { return len(s.attrs) }

// Attributes returns a copy of the attribute list.
func (s *Schema) Attributes() []Attribute {
	out := make([]Attribute, len(s.attrs))
	copy(out, s.attrs)
	return out
}

// Attribute returns the attribute at column i.
func (s *Schema) Attribute(i int) Attribute { return s.attrs[i] }

// Names returns attribute names in column order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.attrs))
	for i, a := range s.attrs {
		names[i] = a.Name
	}
	return names
}

// Index returns the column of the named attribute.
func (s *Schema) Index(name string) (int, error) {
	i, ok := s.index[name]
	if !ok {
		return -1, errors.ErrUnknownAttribute.Detailf("attribute %q", name)
	}
	return i, nil
}

// Indices resolves several names at once.
func (s *Schema) Indices(names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		idx, err := s.Index(n)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// DiscreteColumns returns the columns of categorical and ordinal attributes.
func (s *Schema) DiscreteColumns() []int {
	var cols []int
	for i, a := range s.attrs {
		if a.IsDiscrete() {
			cols = append(cols, i)
		}
	}
	return cols
}

// Equal reports whether two schemas describe the same columns.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || len(s.attrs) != len(o.attrs) {
		return false
	}
	for i := range s.attrs {
		if s.attrs[i] != o.attrs[i] {
			return false
		}
	}
	return true
}

// Valid reports whether v is a legal value for column col.
func (s *Schema) Valid(col int, v float64) bool {
	a := s.attrs[col]
	if !a.IsDiscrete() {
		return v >= 0 && v <= 1
	}
	return v >= 0 && v < float64(a.Size) && v == math.Trunc(v)
}

// Sample draws count values for column col. Discrete attributes are drawn
// uniformly from their codes, numerical ones uniformly from [0, 1).
func (s *Schema) Sample(col, count int, r *rand.Rand) []float64 {
	a := s.attrs[col]
	out := make([]float64, count)
	for i := range out {
		if a.IsDiscrete() {
			out[i] = float64(r.IntN(a.Size))
		} else {
			out[i] = r.Float64()
		}
	}
	return out
}

// ColumnCycle lists every column, each repeated 1+floor(log2(size)) times,
// so that wide attributes are mutated more often than narrow ones.
func (s *Schema) ColumnCycle() []int {
	var cycle []int
	for i, a := range s.attrs {
		reps := 1 + int(math.Floor(math.Log2(float64(a.Size))))
		for j := 0; j < reps; j++ {
			cycle = append(cycle, i)
		}
	}
	return cycle
}
