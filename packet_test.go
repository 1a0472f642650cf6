package tscore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPID(t *testing.T) {
	assert.Equal(t, PIDClassPAT, ClassifyPID(0x0000))
	assert.Equal(t, PIDClassNull, ClassifyPID(0x1fff))
	assert.Equal(t, PIDClassPSI, ClassifyPID(0x0020))
	assert.Equal(t, PIDClassPSI, ClassifyPID(0x1ffa))
	assert.Equal(t, PIDClassPSI, ClassifyPID(0x1ffc))
	assert.Equal(t, PIDClassPSI, ClassifyPID(0x0100))
	assert.Equal(t, PIDClassUnsupported, ClassifyPID(0x001f))
}

func TestPacketRoundTripPayloadOnly(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 184)
	p := &Packet{
		Header: PacketHeader{
			PayloadUnitStartIndicator: true,
			PID:                       0x100,
			ContinuityCounter:         5,
		},
		Payload: payload,
	}

	b, err := WritePacket(p)
	require.NoError(t, err)
	require.Len(t, b, PacketSize)

	got, err := ParsePacket(b)
	require.NoError(t, err)
	assert.True(t, got.PUSI())
	assert.Equal(t, uint16(0x100), got.PID())
	assert.Equal(t, uint8(5), got.Header.ContinuityCounter)
	assert.Equal(t, payload, got.Payload)
}

func TestPacketRoundTripWithPCRAndStuffing(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	p := &Packet{
		Header: PacketHeader{PID: 0x101, ContinuityCounter: 2},
		AdaptationField: &AdaptationField{
			RandomAccessIndicator: true,
			DiscontinuityIndicator: true,
			PCR:                    &PCR{Nanoseconds: 1_000_000_000},
		},
		Payload: payload,
	}

	b, err := WritePacket(p)
	require.NoError(t, err)
	require.Len(t, b, PacketSize)

	got, err := ParsePacket(b)
	require.NoError(t, err)
	require.NotNil(t, got.AdaptationField)
	assert.True(t, got.AdaptationField.RandomAccessIndicator)
	assert.True(t, got.AdaptationField.DiscontinuityIndicator)
	require.NotNil(t, got.AdaptationField.PCR)
	assert.InDelta(t, int64(1_000_000_000), got.AdaptationField.PCR.Nanoseconds, 1)
	assert.Equal(t, payload, got.Payload)
}

func TestParsePacketMissingSyncByte(t *testing.T) {
	b := make([]byte, PacketSize)
	_, err := ParsePacket(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

func TestParsePacketReservedAdaptationFieldControl(t *testing.T) {
	b := make([]byte, PacketSize)
	b[0] = syncByte
	b[3] = 0x00 // afc bits (00) within the low nibble-ish byte, rest zero.
	_, err := ParsePacket(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedPacket)
}

func TestParsePacketScrambledPayloadRejected(t *testing.T) {
	b := make([]byte, PacketSize)
	b[0] = syncByte
	b[1] = 0x01 // pid[12:8], pusi/priority/error all 0
	b[2] = 0x00 // pid[7:0] -> pid 0x100
	b[3] = (ScramblingEvenKey << 6) | (AdaptationFieldControlPayloadOnly << 4)

	_, err := ParsePacket(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedPacket)
}

func TestParseManyNotEnoughData(t *testing.T) {
	p := &Packet{Header: PacketHeader{PID: 0x100}, Payload: bytes.Repeat([]byte{0x00}, 184)}
	full, err := WritePacket(p)
	require.NoError(t, err)

	buf := append(append([]byte{}, full...), full[:100]...)
	pkts, tail, err := ParseMany(buf)
	require.ErrorIs(t, err, ErrNotEnoughData)
	assert.Len(t, pkts, 1)
	assert.Equal(t, full[:100], tail)
}

func TestParseManyExactMultiple(t *testing.T) {
	p := &Packet{Header: PacketHeader{PID: 0x100}, Payload: bytes.Repeat([]byte{0x00}, 184)}
	full, err := WritePacket(p)
	require.NoError(t, err)

	buf := append(append([]byte{}, full...), full...)
	pkts, tail, err := ParseMany(buf)
	require.NoError(t, err)
	assert.Nil(t, tail)
	assert.Len(t, pkts, 2)
}
