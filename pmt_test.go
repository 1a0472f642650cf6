package tscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryForStream(t *testing.T) {
	assert.Equal(t, StreamCategoryVideo, categoryForStream(0x1b, nil))
	assert.Equal(t, StreamCategoryVideo, categoryForStream(0x24, nil))
	assert.Equal(t, StreamCategoryAudio, categoryForStream(0x0f, nil))
	assert.Equal(t, StreamCategoryCues, categoryForStream(0x86, nil))
	assert.Equal(t, StreamCategoryOther, categoryForStream(0x7f, nil))

	// stream_type 0x06 depends on the ES-info descriptor loop.
	assert.Equal(t, StreamCategoryData, categoryForStream(0x06, nil))
	dvbSubEsInfo := encodeDescriptorLoop([]Descriptor{{Tag: dvbSubtitlingDescriptorTag, Data: []byte{0x01}}})
	assert.Equal(t, StreamCategorySubtitles, categoryForStream(0x06, dvbSubEsInfo))
}

func TestPMTBodyRoundTrip(t *testing.T) {
	pmt := NewPMTData(1, 0x100)
	pmt.Descriptors = []Descriptor{{Tag: 0x05, Data: []byte("HDMV")}}
	pmt.Streams[0x100] = PMTStream{PID: 0x100, StreamType: 0x1b, Category: StreamCategoryVideo}
	pmt.Streams[0x101] = PMTStream{PID: 0x101, StreamType: 0x0f, Category: StreamCategoryAudio}

	body, err := EncodePMTBody(pmt)
	require.NoError(t, err)

	got, err := ParsePMTBody(body, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x100), got.PCRPID)
	assert.Equal(t, pmt.Descriptors, got.Descriptors)
	assert.Equal(t, pmt.Streams, got.Streams)
}

func TestPMTBodyESInfoAlwaysEmptyOnEncode(t *testing.T) {
	pmt := NewPMTData(1, 0x1fff)
	pmt.Streams[0x200] = PMTStream{PID: 0x200, StreamType: 0x02, Category: StreamCategoryVideo}

	body, err := EncodePMTBody(pmt)
	require.NoError(t, err)

	got, err := ParsePMTBody(body, 1)
	require.NoError(t, err)
	assert.Equal(t, pmt.Streams, got.Streams)
}
