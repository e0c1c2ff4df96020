// Package dataset holds row-major tables of attribute values.
package dataset

import (
	"math/rand/v2"

	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/pkg/errors"
)

// Dataset is an N×D row-major matrix over a schema. Values of discrete
// attributes are integer codes stored as float64.
//
// A Dataset is treated as immutable once built: operations that change
// rows return a new Dataset.
type Dataset struct {
	schema *domain.Schema
	rows   int
	values []float64
}

// New wraps row-major values. The slice is owned by the dataset afterwards.
func New(schema *domain.Schema, values []float64) (*Dataset, error) {
	d := schema.Len()
	if len(values)%d != 0 {
		return nil, errors.ErrShapeMismatch.Detailf("%d values do not fill rows of %d columns", len(values), d)
	}
	for i, v := range values {
		if !schema.Valid(i%d, v) {
			return nil, errors.ErrInvalidValue.Detailf("row %d column %q value %v", i/d, schema.Attribute(i%d).Name, v)
		}
	}
	return &Dataset{schema: schema, rows: len(values) / d, values: values}, nil
}

// FromRows copies rows into a new dataset.
func FromRows(schema *domain.Schema, rows [][]float64) (*Dataset, error) {
	d := schema.Len()
	values := make([]float64, 0, len(rows)*d)
	for i, row := range rows {
		if len(row) != d {
			return nil, errors.ErrShapeMismatch.Detailf("row %d has %d columns, schema has %d", i, len(row), d)
		}
		values = append(values, row...)
	}
	return New(schema, values)
}

// Synthetic draws n rows column by column from the schema samplers.
func Synthetic(schema *domain.Schema, n int, r *rand.Rand) *Dataset {
	d := schema.Len()
	values := make([]float64, n*d)
	for col := 0; col < d; col++ {
		for i, v := range schema.Sample(col, n, r) {
			values[i*d+col] = v
		}
	}
	return &Dataset{schema: schema, rows: n, values: values}
}

// Schema returns the dataset schema.
func (ds *Dataset) Schema() *domain.Schema { return ds.schema }

// Rows returns N.
func (ds *Dataset) Rows() int { return ds.rows }

// Cols returns D.
func (ds *Dataset) Cols() int { return ds.schema.Len() }

// Row returns a read-only view of row i.
func (ds *Dataset) Row(i int) []float64 {
	d := ds.schema.Len()
	return ds.values[i*d : (i+1)*d : (i+1)*d]
}

// At returns the value at row i, column j.
func (ds *Dataset) At(i, j int) float64 {
	return ds.values[i*ds.schema.Len()+j]
}

// Values returns a copy of the row-major values.
func (ds *Dataset) Values() []float64 {
	out := make([]float64, len(ds.values))
	copy(out, ds.values)
	return out
}

// Clone returns a deep copy.
func (ds *Dataset) Clone() *Dataset {
	return &Dataset{schema: ds.schema, rows: ds.rows, values: ds.Values()}
}

// ReplaceRow returns a copy of the dataset with row i set to row.
func (ds *Dataset) ReplaceRow(i int, row []float64) *Dataset {
	c := ds.Clone()
	copy(c.Row(i), row)
	return c
}

// Project keeps only the named columns.
func (ds *Dataset) Project(names ...string) (*Dataset, error) {
	cols, err := ds.schema.Indices(names...)
	if err != nil {
		return nil, err
	}
	attrs := make([]domain.Attribute, len(cols))
	for i, c := range cols {
		attrs[i] = ds.schema.Attribute(c)
	}
	schema, err := domain.New(attrs...)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, ds.rows*len(cols))
	for i := 0; i < ds.rows; i++ {
		row := ds.Row(i)
		for _, c := range cols {
			values = append(values, row[c])
		}
	}
	return &Dataset{schema: schema, rows: ds.rows, values: values}, nil
}

// Equal reports whether both datasets share a schema and every value.
func (ds *Dataset) Equal(o *Dataset) bool {
	if ds.rows != o.rows || !ds.schema.Equal(o.schema) {
		return false
	}
	for i, v := range ds.values {
		if o.values[i] != v {
			return false
		}
	}
	return true
}
