package tscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario A, spec §8.
func TestPESScenarioA(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}
	pts := int64(20_000_000)
	dts := int64(10_000_000)

	p := &PES{StreamID: 0xE0, PTS: &pts, DTS: &dts, IsAligned: true, Data: payload}

	want := []byte{
		0x00, 0x00, 0x01, 0xE0, 0x00, 0x1C, 0x84, 0xC0, 0x0A,
		0x31, 0x00, 0x01, 0x0E, 0x11,
		0x11, 0x00, 0x01, 0x07, 0x09,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
	}

	got, err := EncodePES(p)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	decoded, err := ParsePartialPES(got, true)
	require.NoError(t, err)
	require.NotNil(t, decoded.StreamID)
	assert.Equal(t, uint8(0xE0), *decoded.StreamID)
	require.NotNil(t, decoded.PTS)
	assert.Equal(t, pts, *decoded.PTS)
	require.NotNil(t, decoded.DTS)
	assert.Equal(t, dts, *decoded.DTS)
	assert.Equal(t, payload, decoded.Data)
}

func TestPESPTSOnlyImpliesDTSEqualsP(t *testing.T) {
	pts := int64(5_000_000)
	p := &PES{StreamID: 0xC0, PTS: &pts, Data: []byte{0xAA, 0xBB}}

	got, err := EncodePES(p)
	require.NoError(t, err)

	decoded, err := ParsePartialPES(got, true)
	require.NoError(t, err)
	require.NotNil(t, decoded.PTS)
	assert.Nil(t, decoded.DTS)
	assert.InDelta(t, pts, *decoded.PTS, clockRoundTrip)
}

func TestPESNoOptionalHeaderForExemptStreamIDs(t *testing.T) {
	p := &PES{StreamID: 0xbe, Data: []byte{0x01, 0x02, 0x03}} // padding_stream
	got, err := EncodePES(p)
	require.NoError(t, err)

	decoded, err := ParsePartialPES(got, true)
	require.NoError(t, err)
	assert.Nil(t, decoded.PTS)
	assert.Equal(t, p.Data, decoded.Data)
}

func TestPESContinuationFragmentIsRawData(t *testing.T) {
	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	got, err := ParsePartialPES(raw, false)
	require.NoError(t, err)
	assert.Nil(t, got.StreamID)
	assert.Equal(t, raw, got.Data)
}

func TestPESUnboundedLengthFallback(t *testing.T) {
	big := make([]byte, 0x10000) // exceeds 0xFFFF once header is added
	p := &PES{StreamID: 0xE0, Data: big}
	got, err := EncodePES(p)
	require.NoError(t, err)

	decoded, err := ParsePartialPES(got, true)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), decoded.Length)
}
