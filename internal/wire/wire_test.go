package wire

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestRoundTripAndUnknownFields(t *testing.T) {
	t.Parallel()

	var b Builder
	b.Int(1, -7)
	b.Double(2, 0.125)
	b.Doubles(3, []float64{1, -2.5})
	b.Message(4, func(m *Builder) { m.String(1, "inner") })
	b.Uint(99, 5) // field a newer writer might add
	b.Bools(5, []bool{true, false, true})

	var (
		i      int
		d      float64
		ds     []float64
		inner  string
		flags  []bool
		others int
	)
	err := Walk(b.Bytes(), func(num protowire.Number, v Value) error {
		var err error
		switch num {
		case 1:
			i = v.Int()
		case 2:
			d = v.Double()
		case 3:
			ds, err = v.Doubles()
		case 4:
			err = Walk(v.Raw(), func(n protowire.Number, iv Value) error {
				if n == 1 {
					inner = iv.String()
				}
				return nil
			})
		case 5:
			flags, err = v.Bools()
		default:
			others++
		}
		return err
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if i != -7 || d != 0.125 || len(ds) != 2 || ds[1] != -2.5 || inner != "inner" || others != 1 {
		t.Fatalf("decoded i=%d d=%v ds=%v inner=%q others=%d", i, d, ds, inner, others)
	}
	if len(flags) != 3 || !flags[0] || flags[1] || !flags[2] {
		t.Fatalf("flags = %v", flags)
	}
}

func TestWalkRejectsTruncatedInput(t *testing.T) {
	t.Parallel()

	var b Builder
	b.Doubles(1, []float64{1, 2, 3})
	raw := b.Bytes()
	if err := Walk(raw[:len(raw)-3], func(protowire.Number, Value) error { return nil }); err == nil {
		t.Fatalf("expected error for truncated input")
	}
}
