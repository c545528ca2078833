// Package predlog persists the prediction log: every successful prediction with its inputs.
package predlog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"auditrisk/ml"
)

// ColumnPredictedRisk is the derived column appended after the feature columns.
const ColumnPredictedRisk = "Predicted_Risk"

var (
	// ErrSchemaMismatch means an existing log has a different header than Columns().
	ErrSchemaMismatch = errors.New("prediction log schema mismatch")
	// ErrMalformedRow means a data row could not be decoded into a Record.
	ErrMalformedRow = errors.New("malformed prediction log row")
)

// Record is one persisted prediction.
type Record struct {
	Features      ml.AuditFeatures
	PredictedRisk string
}

// Columns returns the log header in persisted order.
func Columns() []string {
	return append(ml.FeatureNames(), ColumnPredictedRisk)
}

func (r Record) cells() []interface{} {
	vector := ml.FeatureVector(r.Features)
	cells := make([]interface{}, 0, len(vector)+1)
	for _, v := range vector {
		cells = append(cells, numberCell(v))
	}
	return append(cells, r.PredictedRisk)
}

// numberCell keeps spreadsheet cells readable: workbooks have no non-finite
// numbers, so NaN is left blank and infinities are written as text.
func numberCell(v float64) interface{} {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	default:
		return v
	}
}

// parseNumberCell is the inverse of numberCell.
func parseNumberCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

func checkHeader(header []string) error {
	expected := Columns()
	if len(header) != len(expected) {
		return fmt.Errorf("%w: got %v", ErrSchemaMismatch, header)
	}
	for i := range expected {
		if strings.TrimSpace(header[i]) != expected[i] {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i+1, header[i], expected[i])
		}
	}
	return nil
}

func parseRow(row []string) (Record, error) {
	width := len(Columns())
	if len(row) != width {
		return Record{}, fmt.Errorf("%w: %d cells, want %d", ErrMalformedRow, len(row), width)
	}
	values := make([]float64, width-1)
	for i := range values {
		v, err := parseNumberCell(row[i])
		if err != nil {
			return Record{}, fmt.Errorf("%w: column %s: %v", ErrMalformedRow, Columns()[i], err)
		}
		values[i] = v
	}
	features, err := ml.FeaturesFromVector(values)
	if err != nil {
		return Record{}, err
	}
	return Record{Features: features, PredictedRisk: row[width-1]}, nil
}
