package curve

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyForwardSweepLeavesOtherUntouched(t *testing.T) {
	p := Pair{
		RampUp:   Curve{30, 40, 50, 60, 70},
		RampDown: Curve{25, 35, 45, 55, 65},
	}

	got, touched := Apply(p, RampUp, 1, 80)

	assert.Equal(t, Curve{30, 80, 80, 80, 80}, got.RampUp)
	assert.Equal(t, Curve{25, 35, 45, 55, 65}, got.RampDown)
	assert.False(t, touched)
}

func TestApplyCrossClampRepairsOtherCurveForward(t *testing.T) {
	p := Pair{
		RampUp:   Curve{30, 40, 50, 60, 70},
		RampDown: Curve{30, 40, 90, 55, 65},
	}

	got, touched := Apply(p, RampUp, 1, 80)

	require.True(t, touched)
	assert.Equal(t, Curve{30, 80, 80, 80, 80}, got.RampUp)
	// Index 2 is clamped down to 80, then the ascending repair pass carries
	// 80 into every later point. The pass updates in place, so index 4
	// compares against the already raised index 3; it ends at 80, not 65.
	assert.Equal(t, Curve{30, 40, 80, 80, 80}, got.RampDown)
}

func TestApplyBackwardSweep(t *testing.T) {
	p := Pair{
		RampUp:   Curve{40, 50, 60, 70, 80},
		RampDown: Curve{35, 45, 55, 65, 75},
	}

	got, touched := Apply(p, RampUp, 3, 45)

	require.True(t, touched)
	assert.Equal(t, Curve{40, 45, 45, 45, 80}, got.RampUp)
	assert.Equal(t, Curve{35, 45, 45, 45, 75}, got.RampDown)
}

func TestApplyRampDownRaisesRampUp(t *testing.T) {
	p := Pair{
		RampUp:   Curve{40, 50, 60, 70, 80},
		RampDown: Curve{30, 40, 50, 60, 70},
	}

	got, touched := Apply(p, RampDown, 0, 65)

	require.True(t, touched)
	assert.Equal(t, Curve{65, 65, 65, 65, 70}, got.RampDown)
	assert.Equal(t, Curve{65, 65, 65, 70, 80}, got.RampUp)
}

func TestApplyClampsTrailingPointsAgainstEditedValueOnly(t *testing.T) {
	// Off-curve input as read from a device: trailing points are compared
	// with the edited value, not with a running maximum.
	p := Pair{
		RampUp:   Curve{30, 90, 40, 50, 60},
		RampDown: Curve{30, 30, 30, 30, 30},
	}

	got, touched := Apply(p, RampUp, 0, 35)

	assert.Equal(t, Curve{35, 90, 40, 50, 60}, got.RampUp)
	assert.False(t, touched)
}

func TestApplySameValueIsNoop(t *testing.T) {
	p := Pair{
		RampUp:   Curve{30, 40, 50, 60, 70},
		RampDown: Curve{30, 40, 90, 55, 65},
	}

	got, touched := Apply(p, RampUp, 2, 50)

	assert.Equal(t, p, got)
	assert.False(t, touched)
}

func TestApplyPanicsOnBadIndex(t *testing.T) {
	p := Pair{}
	assert.Panics(t, func() { Apply(p, RampUp, -1, 50) })
	assert.Panics(t, func() { Apply(p, RampDown, Points, 50) })
}

func TestApplyEditBack(t *testing.T) {
	original := Pair{
		RampUp:   Curve{30, 40, 50, 60, 70},
		RampDown: Curve{25, 35, 45, 55, 65},
	}

	t.Run("restores without cross clamp", func(t *testing.T) {
		edited, touched := Apply(original, RampUp, 2, 55)
		require.False(t, touched)
		restored, _ := Apply(edited, RampUp, 2, 50)
		assert.Equal(t, original, restored)
	})

	t.Run("cross clamp is not inverted", func(t *testing.T) {
		edited, touched := Apply(original, RampUp, 2, 40)
		require.True(t, touched)
		restored, _ := Apply(edited, RampUp, 2, 50)
		assert.Equal(t, original.RampUp, restored.RampUp)
		assert.Equal(t, Curve{25, 35, 40, 55, 65}, restored.RampDown)
	})
}

func randomCurve(r *rand.Rand) Curve {
	var c Curve
	for i := range c {
		c[i] = DefaultBand.Min + r.Intn(DefaultBand.Max-DefaultBand.Min+1)
	}
	sort.Ints(c[:])
	return c
}

func randomPair(r *rand.Rand) Pair {
	up := randomCurve(r)
	var down Curve
	for i := range down {
		down[i] = DefaultBand.Min + r.Intn(up[i]-DefaultBand.Min+1)
	}
	sort.Ints(down[:])
	// Sorting keeps down[i] <= up[i]: the i-th smallest of values bounded
	// pointwise by a sorted sequence stays under that sequence.
	return Pair{RampUp: up, RampDown: down}
}

func TestApplyProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for n := 0; n < 5000; n++ {
		p := randomPair(r)
		require.True(t, p.RampUp.Monotonic())
		require.True(t, p.Ordered(), "generator produced %+v", p)

		kind := Kinds[r.Intn(len(Kinds))]
		index := r.Intn(Points)
		value := DefaultBand.Clamp(20 + r.Intn(90))

		once, touched := Apply(p, kind, index, value)
		assert.True(t, once.RampUp.Monotonic(), "rampup %v after %v[%d]=%d on %+v", once.RampUp, kind, index, value, p)
		assert.True(t, once.RampDown.Monotonic(), "rampdown %v after %v[%d]=%d on %+v", once.RampDown, kind, index, value, p)
		assert.True(t, once.Ordered(), "pair %+v after %v[%d]=%d on %+v", once, kind, index, value, p)
		assert.Equal(t, value, once.Get(kind)[index])
		if !touched {
			assert.Equal(t, p.Get(kind.Other()), once.Get(kind.Other()))
		}

		twice, touchedAgain := Apply(once, kind, index, value)
		assert.Equal(t, once, twice, "apply is not idempotent")
		assert.False(t, touchedAgain)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"rampup": RampUp, "RampDown": RampDown, "up": RampUp, " down ": RampDown,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKind("sideways")
	assert.Error(t, err)
}

func TestBandClamp(t *testing.T) {
	assert.Equal(t, 30, DefaultBand.Clamp(5))
	assert.Equal(t, 100, DefaultBand.Clamp(120))
	assert.Equal(t, 55, DefaultBand.Clamp(55))
}
