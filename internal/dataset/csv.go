package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/pkg/errors"
)

// CSVOptions controls CSV encoding.
type CSVOptions struct {
	Delimiter string `json:"delimiter" mapstructure:"delimiter"`
}

func (o CSVOptions) comma() (rune, error) {
	if o.Delimiter == "" {
		return ',', nil
	}
	if len(o.Delimiter) != 1 {
		return 0, fmt.Errorf("CSV delimiter must be a single character")
	}
	return rune(o.Delimiter[0]), nil
}

// ReadCSV reads a headed CSV file. Columns are matched to schema attributes
// by header name; columns not in the schema are ignored.
func ReadCSV(ctx context.Context, r io.Reader, schema *domain.Schema, options CSVOptions) (*Dataset, error) {
	comma, err := options.comma()
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(r)
	reader.Comma = comma

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	position := make(map[string]int, len(header))
	for i, h := range header {
		position[h] = i
	}
	cols := make([]int, schema.Len())
	for j, name := range schema.Names() {
		p, ok := position[name]
		if !ok {
			return nil, errors.ErrUnknownAttribute.Detailf("CSV has no column %q", name)
		}
		cols[j] = p
	}

	var values []float64
	for line := 2; ; line++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		for _, p := range cols {
			v, err := strconv.ParseFloat(record[p], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[p], err)
			}
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, errors.ErrEmptyDataset
	}
	return New(schema, values)
}

// WriteCSV writes the dataset with a header row. Discrete codes are written
// as integers.
func WriteCSV(ctx context.Context, w io.Writer, ds *Dataset, options CSVOptions) error {
	comma, err := options.comma()
	if err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	writer.Comma = comma
	defer writer.Flush()

	if err := writer.Write(ds.schema.Names()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	record := make([]string, ds.Cols())
	for i := 0; i < ds.rows; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for j, v := range ds.Row(i) {
			if ds.schema.Attribute(j).IsDiscrete() {
				record[j] = strconv.Itoa(int(v))
			} else {
				record[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
