package tscore

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
)

// PTS/DTS presence flags carried in the PES optional header.
const (
	ptsDTSNone = 0b00
	ptsDTSOnly = 0b10
	ptsDTSBoth = 0b11
	// 0b01 is forbidden.
)

const pesStartCodePrefix = 0x000001

// hasPESHeader reports whether a stream_id carries a PES optional
// header, following the ISO/IEC 13818-1 "has_pes_header" exemption
// list: program_stream_map, padding_stream, private_stream_2, ECM,
// EMM, DSMCC_stream, ITU-T Rec. H.222.1 type E, and
// program_stream_directory carry none.
func hasPESHeader(streamID uint8) bool {
	switch streamID {
	case 0xbc, 0xbe, 0xbf, 0xf0, 0xf1, 0xf2, 0xf8, 0xff:
		return false
	default:
		return true
	}
}

// PartialPES is one TS-packet-sized fragment of a PES, as produced by
// decoding a single packet's payload (§4.6/§4.8). Only the leader
// fragment (the one starting a new PES, i.e. decoded from a
// pusi-marked packet) carries StreamID/PTS/DTS/Length; continuation
// fragments have StreamID == nil and inherit the leader's identity at
// finalisation time.
type PartialPES struct {
	StreamID      *uint8
	Length        uint16 // declared payload length: pes_packet_length minus the optional PES header; 0 means unbounded. Only meaningful on the leader.
	PTS           *int64 // nanoseconds
	DTS           *int64 // nanoseconds
	IsAligned     bool
	Discontinuity bool
	Data          []byte
}

// ParsePartialPES decodes one packet payload's worth of PES data. When
// leader is true, payload is expected to start with the PES start code
// and stream header; otherwise it is treated as a raw continuation of
// an already-open PES.
func ParsePartialPES(payload []byte, leader bool) (*PartialPES, error) {
	if !leader {
		return &PartialPES{Data: payload}, nil
	}

	if len(payload) < 6 {
		return nil, fmt.Errorf("%w: PES header truncated", ErrInvalidData)
	}

	r := bitio.NewCountReader(bytes.NewReader(payload))
	prefix := r.TryReadBits(24)
	if r.TryError == nil && prefix != pesStartCodePrefix {
		return nil, fmt.Errorf("%w: bad PES start code prefix", ErrInvalidData)
	}

	streamID := r.TryReadByte()
	packetLength := uint16(r.TryReadBits(16))
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: PES header: %v", ErrInvalidData, r.TryError)
	}

	p := &PartialPES{StreamID: &streamID, Length: packetLength}

	if !hasPESHeader(streamID) {
		p.Data = payload[6:]
		return p, nil
	}

	if len(payload) < 9 {
		return nil, fmt.Errorf("%w: PES optional header truncated", ErrInvalidData)
	}

	_ = r.TryReadBits(2) // '10' marker.
	_ = r.TryReadBits(2) // scrambling_control
	_ = r.TryReadBool()  // priority
	p.IsAligned = r.TryReadBool()
	_ = r.TryReadBool() // copyright
	_ = r.TryReadBool() // original_or_copy

	ptsDTSFlags := uint8(r.TryReadBits(2))
	_ = r.TryReadBits(6) // remaining flags, not modelled.
	headerDataLength := int(r.TryReadByte())
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: PES optional header: %v", ErrInvalidData, r.TryError)
	}

	headerStartBits := r.BitsCount
	switch ptsDTSFlags {
	case ptsDTSOnly:
		ts, err := readTimestamp(r, 0b0010)
		if err != nil {
			return nil, fmt.Errorf("%w: PTS: %v", ErrInvalidData, err)
		}
		ns := TSToNs(ts)
		p.PTS = &ns
	case ptsDTSBoth:
		ts, err := readTimestamp(r, 0b0011)
		if err != nil {
			return nil, fmt.Errorf("%w: PTS: %v", ErrInvalidData, err)
		}
		ns := TSToNs(ts)
		p.PTS = &ns

		ts, err = readTimestamp(r, 0b0001)
		if err != nil {
			return nil, fmt.Errorf("%w: DTS: %v", ErrInvalidData, err)
		}
		ns = TSToNs(ts)
		p.DTS = &ns
	case ptsDTSNone:
	default:
		return nil, fmt.Errorf("%w: forbidden pts_dts_flags value", ErrInvalidData)
	}

	consumed := int((r.BitsCount - headerStartBits) / 8)
	if skip := headerDataLength - consumed; skip > 0 {
		buf := make([]byte, skip)
		tryReadFull(r, buf)
	}
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: PES header_data: %v", ErrInvalidData, r.TryError)
	}

	dataStart := 9 + headerDataLength
	if dataStart > len(payload) {
		return nil, fmt.Errorf("%w: PES header_data_length exceeds payload", ErrInvalidData)
	}
	if p.Length != 0 {
		// pes_packet_length also counts the optional header; keep only the
		// payload part so it compares against the reassembled data.
		optionalLen := uint16(3 + headerDataLength)
		if p.Length < optionalLen {
			return nil, fmt.Errorf("%w: pes_packet_length %d shorter than the PES optional header", ErrInvalidData, p.Length)
		}
		p.Length -= optionalLen
	}
	p.Data = payload[dataStart:]
	return p, nil
}

// readTimestamp reads a 5-byte PTS/DTS field with the given 4-bit
// prefix, returning the raw 33-bit 90 kHz value.
func readTimestamp(r *bitio.CountReader, wantPrefix uint8) (int64, error) {
	prefix := uint8(r.TryReadBits(4))
	if r.TryError == nil && prefix != wantPrefix {
		return 0, fmt.Errorf("bad timestamp prefix %#x, want %#x", prefix, wantPrefix)
	}

	high := r.TryReadBits(3)
	_ = r.TryReadBool() // marker_bit
	mid := r.TryReadBits(15)
	_ = r.TryReadBool() // marker_bit
	low := r.TryReadBits(15)
	_ = r.TryReadBool() // marker_bit

	if r.TryError != nil {
		return 0, r.TryError
	}
	return int64(high<<30 | mid<<15 | low), nil
}

// writeTimestamp writes a 5-byte PTS/DTS field with the given 4-bit
// prefix, encoding the raw 33-bit 90 kHz value.
func writeTimestamp(w *bitio.Writer, prefix uint8, ts int64) {
	w.TryWriteBits(uint64(prefix), 4)
	w.TryWriteBits(uint64(ts>>30)&0b111, 3)
	w.TryWriteBool(true)
	w.TryWriteBits(uint64(ts>>15)&0x7fff, 15)
	w.TryWriteBool(true)
	w.TryWriteBits(uint64(ts)&0x7fff, 15)
	w.TryWriteBool(true)
}

// PES is a fully reassembled Packetized Elementary Stream unit, §3.
type PES struct {
	StreamID      uint8
	PTS           *int64 // nanoseconds
	DTS           *int64 // nanoseconds
	IsAligned     bool
	Discontinuity bool
	Data          []byte
}

// EncodePES marshals a complete PES into its wire form: start code,
// stream_id, pes_packet_length, an optional header (for stream_ids
// that carry one), and the payload.
func EncodePES(p *PES) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	w.TryWriteBits(pesStartCodePrefix, 24)
	w.TryWriteByte(p.StreamID)

	var optionalHeader []byte
	if hasPESHeader(p.StreamID) {
		var err error
		optionalHeader, err = encodePESOptionalHeader(p)
		if err != nil {
			return nil, err
		}
	}

	size := len(p.Data) + len(optionalHeader)
	if size > 0xffff {
		size = 0 // Unbounded convention; ISO 13818-1 allows it only for video, but it is applied here to any stream_id.
	}
	w.TryWriteBits(uint64(size), 16)

	if len(optionalHeader) > 0 {
		w.TryWrite(optionalHeader)
	}
	w.TryWrite(p.Data)

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding PES: %w", err)
	}
	return buf.Bytes(), nil
}

// encodePESOptionalHeader builds the 10:2,...,pes_header_data_length:8
// optional header plus its header_data (PTS/DTS only; this codec never
// emits ESCR, trick-mode, or the legacy extension fields).
func encodePESOptionalHeader(p *PES) ([]byte, error) {
	headerData := &bytes.Buffer{}
	hw := bitio.NewWriter(headerData)

	ptsDTSFlags := uint8(ptsDTSNone)
	switch {
	case p.PTS != nil && p.DTS != nil:
		ptsDTSFlags = ptsDTSBoth
		writeTimestamp(hw, 0b0011, NsToTS(*p.PTS))
		writeTimestamp(hw, 0b0001, NsToTS(*p.DTS))
	case p.PTS != nil:
		ptsDTSFlags = ptsDTSOnly
		writeTimestamp(hw, 0b0010, NsToTS(*p.PTS))
	}
	if err := hw.Close(); err != nil {
		return nil, fmt.Errorf("encoding PES timestamps: %w", err)
	}

	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	w.TryWriteBits(0b10, 2) // marker bits
	w.TryWriteBits(0, 2)    // scrambling_control
	w.TryWriteBool(false)   // priority
	w.TryWriteBool(p.IsAligned)
	w.TryWriteBool(false) // copyright
	w.TryWriteBool(false) // original_or_copy
	w.TryWriteBits(uint64(ptsDTSFlags), 2)
	w.TryWriteBits(0, 6) // remaining flags: no ESCR/ES-rate/trick-mode/copy-info/CRC/extension.
	w.TryWriteByte(uint8(headerData.Len()))
	w.TryWrite(headerData.Bytes())

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding PES optional header: %w", err)
	}
	return buf.Bytes(), nil
}
