package amc

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/meenmo/amc/internal/wire"
	"github.com/meenmo/amc/regression"
	"github.com/meenmo/amc/utils"
)

// schemaVersion is the calculator layout written by MarshalBinary. Readers
// accept any version up to their own and skip unknown fields.
const schemaVersion = 1

const kindCallableBond = "CallableBond"

// envelope fields
const (
	envVersion = 1
	envKind    = 2
	envPayload = 3
)

// callable bond payload fields
const (
	fieldCurrency = iota + 1
	fieldExternalIndices
	fieldExerciseXvaTimes
	fieldXvaTimes
	fieldExercise
	fieldValuationModels
	fieldCloseOutModels
	fieldResultValue
	fieldInitialState
	fieldReevaluate
	fieldIncludeToday
)

// MarshalBinary encodes the calculator with its schema version. The
// close-out models are omitted when they are the valuation models.
func (c *CallableBondCalculator) MarshalBinary() ([]byte, error) {
	var p wire.Builder
	p.String(fieldCurrency, c.currency)
	p.Ints(fieldExternalIndices, c.externalModelIndices)
	p.Doubles(fieldExerciseXvaTimes, c.exerciseXvaTimes)
	p.Doubles(fieldXvaTimes, c.xvaTimes)
	for _, ex := range c.exercises {
		p.Message(fieldExercise, func(b *wire.Builder) {
			b.Double(1, ex.Time)
			b.Bool(2, ex.HasCall)
			b.Bool(3, ex.HasPut)
		})
	}
	valuation, err := marshalModelSet(c.models[0])
	if err != nil {
		return nil, fmt.Errorf("CallableBondCalculator.MarshalBinary: %w", err)
	}
	p.Raw(fieldValuationModels, valuation)
	if c.models[1] != c.models[0] {
		closeOut, err := marshalModelSet(c.models[1])
		if err != nil {
			return nil, fmt.Errorf("CallableBondCalculator.MarshalBinary: close-out: %w", err)
		}
		p.Raw(fieldCloseOutModels, closeOut)
	}
	p.Double(fieldResultValue, c.resultValue)
	p.Doubles(fieldInitialState, c.initialState)
	p.Bool(fieldReevaluate, c.reevaluateExercise)
	p.Bool(fieldIncludeToday, c.includeTodaysCashflows)

	var env wire.Builder
	env.Uint(envVersion, schemaVersion)
	env.String(envKind, kindCallableBond)
	env.Raw(envPayload, p.Bytes())
	return env.Bytes(), nil
}

// UnmarshalBinary decodes a calculator written by MarshalBinary.
func (c *CallableBondCalculator) UnmarshalBinary(data []byte) error {
	kind, payload, err := openEnvelope(data)
	if err != nil {
		return fmt.Errorf("CallableBondCalculator.UnmarshalBinary: %w", err)
	}
	if kind != kindCallableBond {
		return fmt.Errorf("CallableBondCalculator.UnmarshalBinary: %w: kind %q", ErrConfiguration, kind)
	}
	out, err := decodeCallableBond(payload)
	if err != nil {
		return fmt.Errorf("CallableBondCalculator.UnmarshalBinary: %w", err)
	}
	*c = *out
	return nil
}

// DecodeCalculator decodes any calculator written by MarshalBinary.
func DecodeCalculator(data []byte) (Calculator, error) {
	kind, payload, err := openEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("DecodeCalculator: %w", err)
	}
	switch kind {
	case kindCallableBond:
		c, err := decodeCallableBond(payload)
		if err != nil {
			return nil, fmt.Errorf("DecodeCalculator: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("DecodeCalculator: %w: unknown calculator kind %q", ErrConfiguration, kind)
}

func openEnvelope(data []byte) (string, []byte, error) {
	var (
		version uint64
		kind    string
		payload []byte
		seen    bool
	)
	err := wire.Walk(data, func(num protowire.Number, v wire.Value) error {
		switch num {
		case envVersion:
			version, seen = v.Uint(), true
		case envKind:
			kind = v.String()
		case envPayload:
			payload = v.Raw()
		}
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if !seen {
		return "", nil, fmt.Errorf("%w: missing schema version", ErrConfiguration)
	}
	if version > schemaVersion {
		return "", nil, fmt.Errorf("%w: schema %d is newer than %d", ErrIncompatibleVersion, version, schemaVersion)
	}
	return kind, payload, nil
}

func decodeCallableBond(payload []byte) (*CallableBondCalculator, error) {
	c := &CallableBondCalculator{}
	var valuation, closeOut []byte
	err := wire.Walk(payload, func(num protowire.Number, v wire.Value) error {
		var err error
		switch num {
		case fieldCurrency:
			c.currency = v.String()
		case fieldExternalIndices:
			c.externalModelIndices, err = v.Ints()
		case fieldExerciseXvaTimes:
			var ts []float64
			ts, err = v.Doubles()
			c.exerciseXvaTimes = utils.TimeSet(ts)
		case fieldXvaTimes:
			var ts []float64
			ts, err = v.Doubles()
			c.xvaTimes = utils.TimeSet(ts)
		case fieldExercise:
			var ex exerciseFlag
			err = wire.Walk(v.Raw(), func(n protowire.Number, f wire.Value) error {
				switch n {
				case 1:
					ex.Time = f.Double()
				case 2:
					ex.HasCall = f.Bool()
				case 3:
					ex.HasPut = f.Bool()
				}
				return nil
			})
			c.exercises = append(c.exercises, ex)
		case fieldValuationModels:
			valuation = v.Raw()
		case fieldCloseOutModels:
			closeOut = v.Raw()
		case fieldResultValue:
			c.resultValue = v.Double()
		case fieldInitialState:
			c.initialState, err = v.Doubles()
		case fieldReevaluate:
			c.reevaluateExercise = v.Bool()
		case fieldIncludeToday:
			c.includeTodaysCashflows = v.Bool()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	n := len(c.exerciseXvaTimes)
	if c.models[0], err = unmarshalModelSet(valuation, n); err != nil {
		return nil, err
	}
	c.models[1] = c.models[0]
	if closeOut != nil {
		if c.models[1], err = unmarshalModelSet(closeOut, n); err != nil {
			return nil, err
		}
	}
	for i, t := range c.xvaTimes {
		j, ok := c.exerciseXvaTimes.Index(t)
		if !ok || c.models[0].undDirty[j] == nil || c.models[1].undDirty[j] == nil {
			return nil, fmt.Errorf("%w: exposure time %d has no underlying model", ErrConfiguration, i)
		}
	}
	c.index()
	return c, nil
}

// model set fields, one per purpose; each entry is {index, model}
const (
	setUndDirty = iota + 1
	setContCall
	setContPut
	setOption
	setCallExercise
	setPutExercise
)

func (s *modelSet) slots() map[protowire.Number][]*regression.Model {
	return map[protowire.Number][]*regression.Model{
		setUndDirty:     s.undDirty,
		setContCall:     s.contCall,
		setContPut:      s.contPut,
		setOption:       s.option,
		setCallExercise: s.callExercise,
		setPutExercise:  s.putExercise,
	}
}

func marshalModelSet(s *modelSet) ([]byte, error) {
	var b wire.Builder
	slots := s.slots()
	for num := protowire.Number(setUndDirty); num <= setPutExercise; num++ {
		for i, m := range slots[num] {
			if m == nil {
				continue
			}
			data, err := m.MarshalBinary()
			if err != nil {
				return nil, err
			}
			b.Message(num, func(e *wire.Builder) {
				e.Uint(1, uint64(i))
				e.Raw(2, data)
			})
		}
	}
	return b.Bytes(), nil
}

func unmarshalModelSet(data []byte, n int) (*modelSet, error) {
	s := newModelSet(n)
	slots := s.slots()
	err := wire.Walk(data, func(num protowire.Number, v wire.Value) error {
		dst, ok := slots[num]
		if !ok {
			return nil
		}
		var (
			index uint64
			raw   []byte
		)
		if err := wire.Walk(v.Raw(), func(f protowire.Number, fv wire.Value) error {
			switch f {
			case 1:
				index = fv.Uint()
			case 2:
				raw = fv.Raw()
			}
			return nil
		}); err != nil {
			return err
		}
		if index >= uint64(n) {
			return fmt.Errorf("model index %d outside %d times", index, n)
		}
		m := &regression.Model{}
		if err := m.UnmarshalBinary(raw); err != nil {
			return err
		}
		dst[index] = m
		return nil
	})
	if err != nil {
		if errors.Is(err, regression.ErrIncompatibleVersion) {
			return nil, fmt.Errorf("%w: %w", ErrIncompatibleVersion, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return s, nil
}
