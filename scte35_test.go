package tscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario B, spec §8.
func TestSCTE35ScenarioB(t *testing.T) {
	ins := &SpliceInsert{
		EventID:             1_073_743_242,
		OutOfNetwork:        true,
		BreakDurationFlag:   true,
		SpliceImmediateFlag: true,
		BreakDuration: &BreakDuration{
			AutoReturn: false,
			Duration:   TSToNs(1_547_665_413),
		},
		UniqueProgramID: 0x55E,
	}
	d := NewSpliceInsertSCTE35(1_073_743_242, 0, ins)

	body, err := EncodeSCTE35Body(d)
	require.NoError(t, err)

	got, err := ParseSCTE35Body(body)
	require.NoError(t, err)

	assert.Equal(t, uint16(0xfff), got.Tier)
	require.NotNil(t, got.SpliceInsert)
	assert.Equal(t, ins.EventID, got.SpliceInsert.EventID)
	assert.False(t, got.SpliceInsert.CancelIndicator)
	assert.True(t, got.SpliceInsert.OutOfNetwork)
	assert.True(t, got.SpliceInsert.SpliceImmediateFlag)
	assert.Nil(t, got.SpliceInsert.SpliceTime) // splice_immediate implies no splice_time.
	require.NotNil(t, got.SpliceInsert.BreakDuration)
	assert.False(t, got.SpliceInsert.BreakDuration.AutoReturn)
	assert.InDelta(t, ins.BreakDuration.Duration, got.SpliceInsert.BreakDuration.Duration, clockRoundTrip)
	assert.Equal(t, uint16(0x55E), got.SpliceInsert.UniqueProgramID)
}

// Scenario B, spec §8 — byte-exact wire form. This pins down the
// splice_command_length convention (it counts splice_command_type
// plus the command body, per §4.2's section_length-style accounting)
// against a hand-derived expectation, rather than only round-tripping
// the encoder against its own decoder.
func TestSCTE35ScenarioBWireBytes(t *testing.T) {
	ins := &SpliceInsert{
		EventID:             1_073_743_242,
		OutOfNetwork:        true,
		BreakDurationFlag:   true,
		SpliceImmediateFlag: true,
		BreakDuration: &BreakDuration{
			AutoReturn: false,
			Duration:   TSToNs(1_547_665_413),
		},
		UniqueProgramID: 0x55E,
	}
	d := NewSpliceInsertSCTE35(1_073_743_242, 0, ins)

	want := []byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF,
		0xF0, 0x10, 0x05, 0x40, 0x00, 0x05, 0x8A, 0x7F,
		0xF7, 0x7E, 0x5C, 0x3F, 0x80, 0x05, 0x05, 0x5E,
		0x00, 0x00, 0x00, 0x00,
	}

	got, err := EncodeSCTE35Body(d)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// splice_command_length (bytes 8-9, 12 bits starting mid-byte 8)
	// must read back as 16 (15-byte splice_insert body + 1 for
	// splice_command_type), not 15.
	decoded, err := ParseSCTE35Body(want)
	require.NoError(t, err)
	require.NotNil(t, decoded.SpliceInsert)
	assert.Equal(t, ins.UniqueProgramID, decoded.SpliceInsert.UniqueProgramID)
	assert.Equal(t, uint8(0), decoded.SpliceInsert.AvailNum)
}

func TestSCTE35CancelIndicatorSkipsBody(t *testing.T) {
	d := NewSpliceInsertSCTE35(42, 0, &SpliceInsert{EventID: 42, CancelIndicator: true})

	body, err := EncodeSCTE35Body(d)
	require.NoError(t, err)

	got, err := ParseSCTE35Body(body)
	require.NoError(t, err)
	require.NotNil(t, got.SpliceInsert)
	assert.True(t, got.SpliceInsert.CancelIndicator)
	assert.Nil(t, got.SpliceInsert.BreakDuration)
	assert.Nil(t, got.SpliceInsert.SpliceTime)
}

func TestSCTE35UnknownSpliceCommandType(t *testing.T) {
	d := &SCTE35Data{CommandType: 0x42}
	body, err := EncodeSCTE35Body(d)
	require.NoError(t, err)

	_, err = ParseSCTE35Body(body)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSpliceType)
}

func TestSCTE35ComponentSplicingUnsupported(t *testing.T) {
	// event_id=7, cancel=0, reserved=1111111, then a flags byte with
	// program_splice_flag (bit 6) cleared.
	commandData := []byte{0x00, 0x00, 0x00, 0x07, 0x7F, 0x07}

	_, err := parseSpliceInsert(commandData)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSCTE35Unmarshal)
}

func TestSCTE35NullCommandHasNoInsert(t *testing.T) {
	d := &SCTE35Data{CommandType: SpliceCommandTypeNull, Tier: 0xfff}
	body, err := EncodeSCTE35Body(d)
	require.NoError(t, err)

	got, err := ParseSCTE35Body(body)
	require.NoError(t, err)
	assert.Nil(t, got.SpliceInsert)
	assert.Equal(t, SpliceCommandTypeNull, got.CommandType)
}
