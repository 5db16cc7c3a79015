package curve

import "fmt"

// Apply sets point index of the kind curve to value and cascades the edit so
// the pair stays consistent. It returns the new pair and whether the opposite
// curve had to change as well (and therefore needs its own write).
//
// The edited curve is swept forward (trailing points raised to value) and
// backward (leading points lowered to value). The opposite curve is then
// clamped per level against the edited one and repaired with a single
// ascending pass; it gets no backward pass.
//
// Apply panics if index is outside 0..Points-1.
func Apply(p Pair, kind Kind, index, value int) (Pair, bool) {
	if index < 0 || index >= Points {
		panic(fmt.Sprintf("curve: point index %d out of range", index))
	}

	edited := p.Get(kind)
	if edited[index] == value {
		return p, false
	}
	edited[index] = value

	for i := index + 1; i < Points; i++ {
		if edited[i] < value {
			edited[i] = value
		}
	}
	for i := index - 1; i >= 0; i-- {
		if edited[i] > value {
			edited[i] = value
		}
	}

	other := p.Get(kind.Other())
	touched := false
	for i := 0; i < Points; i++ {
		switch {
		case kind == RampUp && other[i] > edited[i]:
			other[i] = edited[i]
			touched = true
		case kind == RampDown && other[i] < edited[i]:
			other[i] = edited[i]
			touched = true
		}
	}

	if touched {
		for i := 0; i < Points-1; i++ {
			if other[i+1] < other[i] {
				other[i+1] = other[i]
			}
		}
	}

	p.Set(kind, edited)
	p.Set(kind.Other(), other)
	return p, touched
}
