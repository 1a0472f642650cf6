package tscore

import (
	"bytes"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/icza/bitio"
)

// StreamCategory buckets a PMT elementary stream by the kind of payload
// it carries, per §3/§6. The demuxer and muxer key their PES handling
// off this rather than the raw stream_type_id.
type StreamCategory string

const (
	StreamCategoryVideo     StreamCategory = "video"
	StreamCategoryAudio     StreamCategory = "audio"
	StreamCategorySubtitles StreamCategory = "subtitles"
	StreamCategoryCues      StreamCategory = "cues"
	StreamCategoryMetadata  StreamCategory = "metadata"
	StreamCategoryIPMP      StreamCategory = "ipmp"
	StreamCategoryData      StreamCategory = "data"
	StreamCategoryOther     StreamCategory = "other"
)

// streamTypeCategory is the authoritative stream_type_id -> category
// table from §6. 0x06 (PES private data) is deliberately absent: its
// category depends on whether a DVB subtitling descriptor (tag 0x59) is
// present in the stream's ES-info loop, and is resolved in
// categoryForStream rather than this static table.
var streamTypeCategory = map[uint8]StreamCategory{
	0x01: StreamCategoryVideo, // MPEG-1 video
	0x02: StreamCategoryVideo, // MPEG-2 video
	0x03: StreamCategoryAudio, // MPEG-1 audio
	0x04: StreamCategoryAudio, // MPEG-2 audio
	0x0f: StreamCategoryAudio, // AAC ADTS
	0x11: StreamCategoryAudio, // AAC LATM
	0x1a: StreamCategoryIPMP,
	0x1b: StreamCategoryVideo, // H.264
	0x15: StreamCategoryMetadata,
	0x16: StreamCategoryMetadata,
	0x24: StreamCategoryVideo, // HEVC
	0x33: StreamCategoryVideo, // VVC
	0x81: StreamCategoryAudio, // AC-3 (ATSC)
	0x86: StreamCategoryCues,  // SCTE-35
}

// dvbSubtitlingDescriptorTag is descriptor_tag 0x59, the marker this
// package uses to reclassify a stream_type 0x06 PES private stream as
// subtitles.
const dvbSubtitlingDescriptorTag = 0x59

// categoryForStream resolves a stream's category from its stream_type
// and, for the 0x06 special case, its raw ES-info bytes.
func categoryForStream(streamType uint8, esInfo []byte) StreamCategory {
	if streamType == 0x06 {
		if hasDescriptorTag(esInfo, dvbSubtitlingDescriptorTag) {
			return StreamCategorySubtitles
		}
		return StreamCategoryData
	}
	if c, ok := streamTypeCategory[streamType]; ok {
		return c
	}
	return StreamCategoryOther
}

// hasDescriptorTag scans a raw descriptor loop (tag:8, length:8, data)
// for the given tag, without building a structured descriptor list.
func hasDescriptorTag(raw []byte, tag uint8) bool {
	it := astikit.NewBytesIterator(raw)
	for it.HasBytesLeft() {
		t, err := it.NextByte()
		if err != nil {
			return false
		}
		l, err := it.NextByte()
		if err != nil {
			return false
		}
		if t == tag {
			return true
		}
		if _, err := it.NextBytes(int(l)); err != nil {
			return false
		}
	}
	return false
}

// Descriptor is a generic, un-interpreted program or ES descriptor:
// descriptor_tag:8, descriptor_length:8, data[descriptor_length]. §3
// models descriptors this way rather than as a parsed zoo of per-tag
// types; only the DVB subtitling tag is ever inspected, and only
// transiently, by categoryForStream.
type Descriptor struct {
	Tag  uint8
	Data []byte
}

// PMTStream is one elementary_PID entry of a Program Map Table.
// ES-info descriptors are not modelled as structured data (§4.4): they
// are skipped on decode (after a transient scan for the DVB subtitling
// tag, to resolve Category) and always emitted empty on encode.
type PMTStream struct {
	PID        uint16
	StreamType uint8
	Category   StreamCategory
}

// PMTData is a decoded Program Map Table, §3/§4.4.
type PMTData struct {
	ProgramNumber uint16
	PCRPID        uint16
	Descriptors   []Descriptor
	Streams       map[uint16]PMTStream // elementary_PID -> stream
}

// NewPMTData creates an empty PMT for the given program.
func NewPMTData(programNumber, pcrPID uint16) *PMTData {
	return &PMTData{
		ProgramNumber: programNumber,
		PCRPID:        pcrPID,
		Streams:       map[uint16]PMTStream{},
	}
}

// ParsePMTBody decodes a PMT table body (the bytes following the PSI
// long-form header, excluding CRC).
func ParsePMTBody(body []byte, programNumber uint16) (*PMTData, error) {
	r := bitio.NewCountReader(bytes.NewReader(body))

	d := &PMTData{ProgramNumber: programNumber, Streams: map[uint16]PMTStream{}}
	_ = r.TryReadBits(3) // Reserved.
	d.PCRPID = uint16(r.TryReadBits(13))
	_ = r.TryReadBits(4) // Reserved.
	_ = r.TryReadBits(2) // program_info_reserved
	programInfoLength := int(r.TryReadBits(10))
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: PMT header: %v", ErrInvalidData, r.TryError)
	}

	programInfo := make([]byte, programInfoLength)
	tryReadFull(r, programInfo)
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: PMT program_info: %v", ErrInvalidData, r.TryError)
	}
	var err error
	d.Descriptors, err = parseDescriptorLoop(programInfo)
	if err != nil {
		return nil, err
	}

	for {
		if r.TryError != nil {
			break
		}
		streamType := r.TryReadByte()
		if r.TryError != nil {
			break
		}
		_ = r.TryReadBits(3) // Reserved.
		pid := uint16(r.TryReadBits(13))
		_ = r.TryReadBits(4) // Reserved.
		esInfoLength := int(r.TryReadBits(12))
		if r.TryError != nil {
			return nil, fmt.Errorf("%w: PMT stream header: %v", ErrInvalidData, r.TryError)
		}

		esInfo := make([]byte, esInfoLength)
		tryReadFull(r, esInfo)
		if r.TryError != nil {
			return nil, fmt.Errorf("%w: PMT ES info: %v", ErrInvalidData, r.TryError)
		}

		d.Streams[pid] = PMTStream{
			PID:        pid,
			StreamType: streamType,
			Category:   categoryForStream(streamType, esInfo),
		}
	}

	return d, nil
}

// parseDescriptorLoop decodes a raw descriptor_tag/descriptor_length/
// data sequence into a Descriptor slice.
func parseDescriptorLoop(raw []byte) ([]Descriptor, error) {
	var out []Descriptor
	it := astikit.NewBytesIterator(raw)
	for it.HasBytesLeft() {
		tag, err := it.NextByte()
		if err != nil {
			return nil, fmt.Errorf("%w: descriptor tag: %v", ErrInvalidData, err)
		}
		length, err := it.NextByte()
		if err != nil {
			return nil, fmt.Errorf("%w: descriptor length: %v", ErrInvalidData, err)
		}
		data, err := it.NextBytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("%w: descriptor data: %v", ErrInvalidData, err)
		}
		out = append(out, Descriptor{Tag: tag, Data: data})
	}
	return out, nil
}

// encodeDescriptorLoop is the inverse of parseDescriptorLoop.
func encodeDescriptorLoop(descriptors []Descriptor) []byte {
	buf := &bytes.Buffer{}
	for _, desc := range descriptors {
		buf.WriteByte(desc.Tag)
		buf.WriteByte(uint8(len(desc.Data)))
		buf.Write(desc.Data)
	}
	return buf.Bytes()
}

// EncodePMTBody is the inverse of ParsePMTBody.
func EncodePMTBody(d *PMTData) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	w.TryWriteBits(0b111, 3) // Reserved.
	w.TryWriteBits(uint64(d.PCRPID), 13)

	programInfo := encodeDescriptorLoop(d.Descriptors)
	w.TryWriteBits(0b1111, 4) // Reserved.
	w.TryWriteBits(0b00, 2)   // program_info_reserved
	w.TryWriteBits(uint64(len(programInfo)), 10)
	w.TryWrite(programInfo)

	for _, pid := range sortedUint16Keys(d.Streams) {
		stream := d.Streams[pid]

		w.TryWriteByte(stream.StreamType)
		w.TryWriteBits(0b111, 3) // Reserved.
		w.TryWriteBits(uint64(pid), 13)
		w.TryWriteBits(0b1111, 4) // Reserved.
		w.TryWriteBits(0, 12)     // es_info_length: ES-info descriptors are never emitted.
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding PMT body: %w", err)
	}
	return buf.Bytes(), nil
}
