package tscore

// Clock rates used on the wire. PTS/DTS and the PCR base tick at 90 kHz;
// the PCR extension ticks at 27 MHz. The core stores every timestamp as
// nanoseconds internally and only touches these rates at the wire
// boundary (encode/decode), per the unified clock model.
const (
	clockRate90kHz  = 90_000
	clockRate27MHz  = 27_000_000
	nsPerSecond     = 1_000_000_000
	maxTS33Bit      = 1 << 33
	clockRoundTrip  = nsPerSecond / clockRate90kHz // worst-case rounding error in ns, 11_111
)

// RolloverPeriodNs is the duration, in nanoseconds, of one full 33-bit
// 90 kHz timestamp cycle: T = round(2^33 * 1e9 / 90_000).
var RolloverPeriodNs = roundDivEven(int64(maxTS33Bit)*nsPerSecond, clockRate90kHz)

// ClockReference represents a PCR-style clock split into a 90 kHz base
// and a 27 MHz extension (0..299), as carried on the wire.
type ClockReference struct {
	Base      int64 // 90 kHz ticks, 33 bits.
	Extension int64 // 27 MHz ticks, 0..299.
}

// NewClockReference builds a ClockReference from raw wire fields.
func NewClockReference(base, extension int64) ClockReference {
	return ClockReference{Base: base, Extension: extension}
}

// Nanoseconds converts the clock reference to nanoseconds.
func (c ClockReference) Nanoseconds() int64 {
	return roundDivEven(c.Base*nsPerSecond, clockRate90kHz) + roundDivEven(c.Extension*nsPerSecond, clockRate27MHz)
}

// ClockReferenceFromNs builds the base/extension split from a nanosecond
// value, for egress.
func ClockReferenceFromNs(ns int64) ClockReference {
	ticks27 := roundDivEven(ns*clockRate27MHz, nsPerSecond)
	return ClockReference{Base: ticks27 / 300, Extension: ticks27 % 300}
}

// TSToNs converts a 90 kHz timestamp (PTS/DTS) to nanoseconds.
func TSToNs(ts int64) int64 {
	return roundDivEven(ts*nsPerSecond, clockRate90kHz)
}

// NsToTS converts nanoseconds to a 90 kHz timestamp, truncated to 33
// bits as required on the wire.
func NsToTS(ns int64) int64 {
	return roundDivEven(ns*clockRate90kHz, nsPerSecond) & (maxTS33Bit - 1)
}

// roundDivEven computes round(num/den) using round-half-to-even
// (banker's rounding) semantics, working entirely in integer math so
// the conversions stay bit-exact instead of drifting through float64.
func roundDivEven(num, den int64) int64 {
	if den < 0 {
		num, den = -num, -den
	}

	q := num / den
	r := num % den
	if r < 0 {
		r += den
		q--
	}

	twice := r * 2
	if twice > den || (twice == den && q%2 != 0) {
		q++
	}
	return q
}

// rolloverState tracks the accumulated epoch for a single PID/lane
// (pts or dts) so raw 33-bit timestamps can be corrected into a
// monotonic nanosecond timeline.
type rolloverState struct {
	lastRawNs int64
	epoch     int64
	seen      bool
}

// correct applies the rollover correction described in §4.9 to a raw
// nanosecond timestamp already derived from a 33-bit 90 kHz value, and
// updates the lane's state.
func (s *rolloverState) correct(rawNs int64) int64 {
	if !s.seen {
		s.seen = true
		s.lastRawNs = rawNs
		return rawNs
	}

	half := RolloverPeriodNs / 2
	switch {
	case s.lastRawNs-rawNs > half:
		s.epoch++
	case rawNs-s.lastRawNs > half && s.epoch > 0:
		s.epoch--
	}

	s.lastRawNs = rawNs
	return rawNs + s.epoch*RolloverPeriodNs
}
