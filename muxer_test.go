package tscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuxerAddElementaryStreamAllocatesAndAssignsIDs(t *testing.T) {
	m := NewMuxer()

	videoPID, err := m.AddElementaryStream(0x1b) // h264
	require.NoError(t, err)
	assert.Equal(t, MuxerStartPID, videoPID)

	audioPID, err := m.AddElementaryStream(0x0f) // aac
	require.NoError(t, err)
	assert.Equal(t, MuxerStartPID+1, audioPID)

	assert.Equal(t, uint8(0xe0), m.streams[videoPID].PESStreamID)
	assert.Equal(t, uint8(0xc0), m.streams[audioPID].PESStreamID)
}

func TestMuxerAddElementaryStreamExplicitPIDDuplicateRejected(t *testing.T) {
	m := NewMuxer()

	_, err := m.AddElementaryStream(0x1b, WithStreamPID(0x200))
	require.NoError(t, err)

	_, err = m.AddElementaryStream(0x0f, WithStreamPID(0x200))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPIDAlreadyExists)
}

func TestMuxerRemoveElementaryStreamClearsPCR(t *testing.T) {
	m := NewMuxer()

	pid, err := m.AddElementaryStream(0x1b, WithPCRCarrier())
	require.NoError(t, err)
	assert.Equal(t, pid, m.pcrPID)

	require.NoError(t, m.RemoveElementaryStream(pid))
	assert.Equal(t, noPCRPID, m.pcrPID)

	err = m.RemoveElementaryStream(pid)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPIDNotFound)
}

func TestMuxerMuxPCRInvalidWithoutCarrier(t *testing.T) {
	m := NewMuxer()
	_, err := m.MuxPCR(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPCRPIDInvalid)
}

func TestMuxerPATPMTRoundTripThroughDemuxer(t *testing.T) {
	m := NewMuxer()
	videoPID, err := m.AddElementaryStream(0x1b, WithPCRCarrier())
	require.NoError(t, err)
	_, err = m.AddElementaryStream(0x0f)
	require.NoError(t, err)

	pat, err := m.MuxPAT()
	require.NoError(t, err)
	pmt, err := m.MuxPMT()
	require.NoError(t, err)

	d := NewDemuxer()
	containers, err := d.Push(append(pat, pmt...))
	require.NoError(t, err)
	require.Len(t, containers, 2)

	require.NotNil(t, containers[0].PSI.PAT)
	assert.Equal(t, m.pmtPID, containers[0].PSI.PAT.Programs[MuxerProgramNum])

	require.NotNil(t, containers[1].PSI.PMT)
	assert.Equal(t, videoPID, containers[1].PSI.PMT.PCRPID)
	assert.Len(t, containers[1].PSI.PMT.Streams, 2)
}

func TestMuxerSampleRoundTripThroughDemuxer(t *testing.T) {
	m := NewMuxer()
	videoPID, err := m.AddElementaryStream(0x1b, WithPCRCarrier())
	require.NoError(t, err)

	pat, err := m.MuxPAT()
	require.NoError(t, err)
	pmt, err := m.MuxPMT()
	require.NoError(t, err)

	payload := make([]byte, 400) // spans more than one TS packet
	for i := range payload {
		payload[i] = byte(i)
	}
	pkts, err := m.MuxSample(videoPID, payload, 1_000_000, WithRandomAccess(), WithPCRAttached())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(pkts), 2)

	var stream []byte
	stream = append(stream, pat...)
	stream = append(stream, pmt...)
	for _, p := range pkts {
		stream = append(stream, p...)
	}

	d := NewDemuxer()
	containers, err := d.Push(stream)
	require.NoError(t, err)

	flushed, err := d.Flush() // the single sample is only finalised at end-of-stream.
	require.NoError(t, err)
	containers = append(containers, flushed...)

	var gotPES *Container
	for i := range containers {
		if containers[i].PES != nil {
			gotPES = &containers[i]
		}
	}
	require.NotNil(t, gotPES)
	assert.Equal(t, payload, gotPES.PES.Data)
}

func TestMuxerContinuityCounterWraps(t *testing.T) {
	m := NewMuxer()
	for i := 0; i < 20; i++ {
		cc := m.nextCC(0x100)
		assert.Equal(t, uint8(i%16), cc)
	}
}

func TestMuxerOptPMTStartPIDAndStartPID(t *testing.T) {
	m := NewMuxer(MuxerOptPMTStartPID(0x1234), MuxerOptStartPID(0x300))
	assert.Equal(t, uint16(0x1234), m.pmtPID)

	pid, err := m.AddElementaryStream(0x1b)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x300), pid)
}
