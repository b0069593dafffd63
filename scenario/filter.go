package scenario

// Filter is a per-scenario boolean mask.
type Filter []bool

// ConstFilter returns a filter of n copies of b.
func ConstFilter(n int, b bool) Filter {
	out := make(Filter, n)
	if b {
		for i := range out {
			out[i] = true
		}
	}
	return out
}

func (f Filter) Size() int { return len(f) }

func (f Filter) Clone() Filter { return append(Filter(nil), f...) }

// Count returns the number of set entries.
func (f Filter) Count() int {
	n := 0
	for _, b := range f {
		if b {
			n++
		}
	}
	return n
}

// Any reports whether at least one entry is set.
func (f Filter) Any() bool {
	for _, b := range f {
		if b {
			return true
		}
	}
	return false
}

func Less(a, b Vector) Filter {
	mustMatch("Less", len(a), len(b))
	out := make(Filter, len(a))
	for i := range a {
		out[i] = a[i] < b[i]
	}
	return out
}

func Greater(a, b Vector) Filter {
	mustMatch("Greater", len(a), len(b))
	out := make(Filter, len(a))
	for i := range a {
		out[i] = a[i] > b[i]
	}
	return out
}

// LessThan compares against a scalar.
func LessThan(a Vector, s float64) Filter {
	out := make(Filter, len(a))
	for i := range a {
		out[i] = a[i] < s
	}
	return out
}

// GreaterThan compares against a scalar.
func GreaterThan(a Vector, s float64) Filter {
	out := make(Filter, len(a))
	for i := range a {
		out[i] = a[i] > s
	}
	return out
}

func And(a, b Filter) Filter {
	mustMatch("And", len(a), len(b))
	out := make(Filter, len(a))
	for i := range a {
		out[i] = a[i] && b[i]
	}
	return out
}

func Or(a, b Filter) Filter {
	mustMatch("Or", len(a), len(b))
	out := make(Filter, len(a))
	for i := range a {
		out[i] = a[i] || b[i]
	}
	return out
}

func Not(a Filter) Filter {
	out := make(Filter, len(a))
	for i := range a {
		out[i] = !a[i]
	}
	return out
}

// Select picks ifTrue where f is set and ifFalse elsewhere.
func Select(f Filter, ifTrue, ifFalse Vector) Vector {
	mustMatch("Select", len(f), len(ifTrue))
	mustMatch("Select", len(f), len(ifFalse))
	out := make(Vector, len(f))
	for i, b := range f {
		if b {
			out[i] = ifTrue[i]
		} else {
			out[i] = ifFalse[i]
		}
	}
	return out
}

// Indicator maps the filter to 1/0 values.
func (f Filter) Indicator() Vector {
	out := make(Vector, len(f))
	for i, b := range f {
		if b {
			out[i] = 1
		}
	}
	return out
}
