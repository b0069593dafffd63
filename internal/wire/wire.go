// Package wire wraps protowire with the handful of field kinds the versioned
// binary layouts use. Unknown fields are surfaced to the caller, which skips
// them.
package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Builder appends tagged fields.
type Builder struct {
	buf []byte
}

func (b *Builder) Bytes() []byte { return b.buf }

func (b *Builder) Uint(num protowire.Number, v uint64) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
	b.buf = protowire.AppendVarint(b.buf, v)
}

func (b *Builder) Int(num protowire.Number, v int) {
	b.Uint(num, protowire.EncodeZigZag(int64(v)))
}

func (b *Builder) Bool(num protowire.Number, v bool) {
	b.Uint(num, protowire.EncodeBool(v))
}

func (b *Builder) Double(num protowire.Number, v float64) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.Fixed64Type)
	b.buf = protowire.AppendFixed64(b.buf, math.Float64bits(v))
}

func (b *Builder) Raw(num protowire.Number, v []byte) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
	b.buf = protowire.AppendBytes(b.buf, v)
}

func (b *Builder) String(num protowire.Number, v string) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
	b.buf = protowire.AppendString(b.buf, v)
}

// Doubles writes a packed list of doubles.
func (b *Builder) Doubles(num protowire.Number, v []float64) {
	p := make([]byte, 0, 8*len(v))
	for _, x := range v {
		p = protowire.AppendFixed64(p, math.Float64bits(x))
	}
	b.Raw(num, p)
}

// Ints writes a packed list of zigzag varints.
func (b *Builder) Ints(num protowire.Number, v []int) {
	var p []byte
	for _, x := range v {
		p = protowire.AppendVarint(p, protowire.EncodeZigZag(int64(x)))
	}
	b.Raw(num, p)
}

// Bools writes a packed list of booleans.
func (b *Builder) Bools(num protowire.Number, v []bool) {
	p := make([]byte, 0, len(v))
	for _, x := range v {
		p = protowire.AppendVarint(p, protowire.EncodeBool(x))
	}
	b.Raw(num, p)
}

// Message writes a nested message built by fn.
func (b *Builder) Message(num protowire.Number, fn func(*Builder)) {
	var inner Builder
	fn(&inner)
	b.Raw(num, inner.buf)
}

// Value is a decoded field payload.
type Value struct {
	Type protowire.Type
	u    uint64
	raw  []byte
}

func (v Value) Uint() uint64    { return v.u }
func (v Value) Int() int        { return int(protowire.DecodeZigZag(v.u)) }
func (v Value) Bool() bool      { return protowire.DecodeBool(v.u) }
func (v Value) Double() float64 { return math.Float64frombits(v.u) }
func (v Value) Raw() []byte     { return v.raw }
func (v Value) String() string  { return string(v.raw) }

func (v Value) Doubles() ([]float64, error) {
	if len(v.raw)%8 != 0 {
		return nil, fmt.Errorf("wire: packed doubles of %d bytes", len(v.raw))
	}
	out := make([]float64, 0, len(v.raw)/8)
	for b := v.raw; len(b) > 0; b = b[8:] {
		x, _ := protowire.ConsumeFixed64(b)
		out = append(out, math.Float64frombits(x))
	}
	return out, nil
}

func (v Value) Ints() ([]int, error) {
	var out []int
	for b := v.raw; len(b) > 0; {
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: %w", protowire.ParseError(n))
		}
		out = append(out, int(protowire.DecodeZigZag(x)))
		b = b[n:]
	}
	return out, nil
}

func (v Value) Bools() ([]bool, error) {
	var out []bool
	for b := v.raw; len(b) > 0; {
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: %w", protowire.ParseError(n))
		}
		out = append(out, protowire.DecodeBool(x))
		b = b[n:]
	}
	return out, nil
}

// Walk calls fn for every field of b in order.
func Walk(b []byte, fn func(num protowire.Number, v Value) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: %w", protowire.ParseError(n))
		}
		b = b[n:]
		v := Value{Type: typ}
		switch typ {
		case protowire.VarintType:
			v.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			v.u, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var u32 uint32
			u32, n = protowire.ConsumeFixed32(b)
			v.u = uint64(u32)
		case protowire.BytesType:
			v.raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("wire: field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, v); err != nil {
			return err
		}
	}
	return nil
}
