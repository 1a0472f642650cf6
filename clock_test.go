package tscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTSToNsRoundTrip(t *testing.T) {
	for _, ts := range []int64{0, 1, 90_000, 1_800, 900, maxTS33Bit - 1} {
		ns := TSToNs(ts)
		back := NsToTS(ns)
		assert.InDelta(t, ts, back, 1, "ts=%d", ts)
	}
}

func TestTSToNsExactSeconds(t *testing.T) {
	assert.Equal(t, int64(1_000_000_000), TSToNs(90_000))
	assert.Equal(t, int64(20_000_000), TSToNs(1_800))
	assert.Equal(t, int64(10_000_000), TSToNs(900))
}

func TestClockReferenceNanoseconds(t *testing.T) {
	cr := NewClockReference(90_000, 0)
	assert.Equal(t, int64(1_000_000_000), cr.Nanoseconds())
}

func TestClockReferenceFromNsRoundTrip(t *testing.T) {
	cr := ClockReferenceFromNs(1_000_000_000)
	assert.Equal(t, int64(90_000), cr.Base)
	assert.Equal(t, int64(0), cr.Extension)
}

func TestRoundDivEvenBankersRounding(t *testing.T) {
	assert.Equal(t, int64(2), roundDivEven(5, 2))  // 2.5 -> 2 (even)
	assert.Equal(t, int64(2), roundDivEven(3, 2))  // 1.5 -> 2 (even)
	assert.Equal(t, int64(-2), roundDivEven(-5, 2))
}

func TestRolloverStateMonotonic(t *testing.T) {
	s := &rolloverState{}

	first := s.correct(RolloverPeriodNs - 5_000_000)
	second := s.correct(RolloverPeriodNs - 2_000_000)
	assert.Less(t, first, second)

	// Wrap forward: raw dips back near zero past the boundary.
	third := s.correct(1_000_000)
	assert.Greater(t, third, second)

	fourth := s.correct(4_000_000)
	assert.Greater(t, fourth, third)
}
