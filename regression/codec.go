package regression

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/meenmo/amc/internal/wire"
)

// modelVersion is the binary layout version written by MarshalBinary.
const modelVersion = 1

// ErrIncompatibleVersion is returned when decoding a layout newer than this build.
var ErrIncompatibleVersion = errors.New("incompatible model version")

const (
	fieldVersion = iota + 1
	fieldObservationTime
	fieldRegressor
	fieldVarianceCutoff
	fieldVarGroupMode
	fieldTransformRow
	fieldHasTransform
	fieldFamily
	fieldOrder
	fieldCoefficients
	fieldTrained
)

// MarshalBinary encodes the model including its trained coefficients.
func (m *Model) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.Uint(fieldVersion, modelVersion)
	b.Double(fieldObservationTime, m.observationTime)
	for _, r := range m.regressors {
		b.Message(fieldRegressor, func(rb *wire.Builder) {
			rb.Double(1, r.Time)
			rb.Int(2, r.Index)
		})
	}
	b.Double(fieldVarianceCutoff, m.varianceCutoff)
	b.String(fieldVarGroupMode, string(m.varGroupMode))
	b.Bool(fieldHasTransform, m.transform != nil)
	for _, row := range m.transform {
		b.Doubles(fieldTransformRow, row)
	}
	b.String(fieldFamily, string(m.family))
	b.Int(fieldOrder, m.order)
	if m.coefficients != nil {
		b.Doubles(fieldCoefficients, m.coefficients)
	}
	b.Bool(fieldTrained, m.trained)
	return b.Bytes(), nil
}

// UnmarshalBinary decodes a model written by MarshalBinary.
func (m *Model) UnmarshalBinary(data []byte) error {
	var (
		out          Model
		version      uint64
		hasTransform bool
	)
	err := wire.Walk(data, func(num protowire.Number, v wire.Value) error {
		var err error
		switch num {
		case fieldVersion:
			version = v.Uint()
		case fieldObservationTime:
			out.observationTime = v.Double()
		case fieldRegressor:
			var r Regressor
			err = wire.Walk(v.Raw(), func(n protowire.Number, rv wire.Value) error {
				switch n {
				case 1:
					r.Time = rv.Double()
				case 2:
					r.Index = rv.Int()
				}
				return nil
			})
			out.regressors = append(out.regressors, r)
		case fieldVarianceCutoff:
			out.varianceCutoff = v.Double()
		case fieldVarGroupMode:
			out.varGroupMode = VarGroupMode(v.String())
		case fieldHasTransform:
			hasTransform = v.Bool()
		case fieldTransformRow:
			var row []float64
			row, err = v.Doubles()
			out.transform = append(out.transform, row)
		case fieldFamily:
			out.family = Family(v.String())
		case fieldOrder:
			out.order = v.Int()
		case fieldCoefficients:
			out.coefficients, err = v.Doubles()
			if err == nil && out.coefficients == nil {
				out.coefficients = []float64{}
			}
		case fieldTrained:
			out.trained = v.Bool()
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("regression.Model.UnmarshalBinary: %w", err)
	}
	if version > modelVersion {
		return fmt.Errorf("regression.Model.UnmarshalBinary: %w: %d > %d", ErrIncompatibleVersion, version, modelVersion)
	}
	if hasTransform && out.transform == nil {
		out.transform = [][]float64{}
	}
	if out.coefficients != nil {
		dim := len(out.regressors)
		if hasTransform {
			dim = len(out.transform)
		}
		b, err := newBasis(out.family, out.order, dim, out.groups(dim))
		if err != nil {
			return fmt.Errorf("regression.Model.UnmarshalBinary: %w", err)
		}
		if b.size() != len(out.coefficients) {
			return fmt.Errorf("regression.Model.UnmarshalBinary: %d coefficients for %d basis functions", len(out.coefficients), b.size())
		}
		out.basis = b
	}
	*m = out
	return nil
}
