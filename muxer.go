package tscore

import "fmt"

// Default constants governing the muxer's declared program, §4.10.
const (
	MuxerStartPID    uint16 = 0x0100
	MuxerPMTStartPID uint16 = 0x1000
	MuxerProgramNum  uint16 = 1

	noPCRPID uint16 = 0x1fff
)

// elementaryStream is one stream the muxer has been told to carry.
type elementaryStream struct {
	PID        uint16
	StreamType uint8
	Category   StreamCategory
	PESStreamID uint8
	IsPCR      bool
}

// StreamOpt configures a stream at AddElementaryStream time.
type StreamOpt func(*elementaryStream)

// WithStreamPID pins an explicit elementary_PID instead of
// auto-allocating the next free one.
func WithStreamPID(pid uint16) StreamOpt {
	return func(es *elementaryStream) { es.PID = pid }
}

// WithPCRCarrier flags this stream's PID as the program's PCR carrier.
func WithPCRCarrier() StreamOpt {
	return func(es *elementaryStream) { es.IsPCR = true }
}

// Muxer builds a valid TS bitstream from a declared program structure
// and a stream of media samples, §4.10. Like the Demuxer, it is a
// single value-based state object mutated in place by each Mux* call.
// Not safe for concurrent use.
type Muxer struct {
	transportStreamID uint16
	programNumber     uint16
	pmtPID            uint16
	pcrPID            uint16
	descriptors       []Descriptor

	streams map[uint16]elementaryStream
	nextPID uint16

	categoryIndex map[StreamCategory]int
	counters      map[uint16]uint8

	patVersion uint8
	pmtVersion uint8
}

// NewMuxer creates a Muxer for a single program (program_number 1),
// with a PMT at the default PID (0x1000) and no PCR carrier declared.
func NewMuxer(opts ...MuxerOpt) *Muxer {
	m := &Muxer{
		transportStreamID: MuxerProgramNum,
		programNumber:     MuxerProgramNum,
		pmtPID:            MuxerPMTStartPID,
		pcrPID:            noPCRPID,
		streams:           map[uint16]elementaryStream{},
		nextPID:           MuxerStartPID,
		categoryIndex:     map[StreamCategory]int{},
		counters:          map[uint16]uint8{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddElementaryStream declares a new elementary stream of the given
// stream_type, allocating a PID (by default one past the highest PID
// allocated so far, starting at 0x100 or the MuxerOptStartPID value, so
// removed PIDs are not reused; or an explicit one via WithStreamPID) and
// a PES stream_id derived from its category (§4.10). It bumps the PMT
// version.
func (m *Muxer) AddElementaryStream(streamType uint8, opts ...StreamOpt) (uint16, error) {
	es := elementaryStream{
		StreamType: streamType,
		Category:   categoryForStream(streamType, nil),
	}
	for _, opt := range opts {
		opt(&es)
	}

	if es.PID == 0 {
		es.PID = m.nextPID
	}
	if _, exists := m.streams[es.PID]; exists {
		return 0, fmt.Errorf("%w: PID %d", ErrPIDAlreadyExists, es.PID)
	}
	if es.PID >= m.nextPID {
		m.nextPID = es.PID + 1
	}

	es.PESStreamID = m.assignPESStreamID(es.Category)
	m.streams[es.PID] = es
	if es.IsPCR {
		m.pcrPID = es.PID
	}
	m.pmtVersion++
	return es.PID, nil
}

// RemoveElementaryStream drops a previously declared stream.
func (m *Muxer) RemoveElementaryStream(pid uint16) error {
	if _, ok := m.streams[pid]; !ok {
		return fmt.Errorf("%w: PID %d", ErrPIDNotFound, pid)
	}
	delete(m.streams, pid)
	if m.pcrPID == pid {
		m.pcrPID = noPCRPID
	}
	m.pmtVersion++
	return nil
}

// assignPESStreamID implements the §4.10 category -> stream_id table.
func (m *Muxer) assignPESStreamID(cat StreamCategory) uint8 {
	switch cat {
	case StreamCategoryVideo:
		idx := m.categoryIndex[cat]
		m.categoryIndex[cat]++
		return 0xe0 + uint8(idx)
	case StreamCategoryAudio:
		idx := m.categoryIndex[cat]
		m.categoryIndex[cat]++
		return 0xc0 + uint8(idx)
	case StreamCategoryIPMP, StreamCategoryMetadata:
		idx := m.categoryIndex[cat]
		m.categoryIndex[cat]++
		return 0xf0 + uint8(idx)
	default: // subtitles, cues, data, other
		return 0xbd
	}
}

func (m *Muxer) nextCC(pid uint16) uint8 {
	cc := m.counters[pid]
	m.counters[pid] = (cc + 1) % 16
	return cc
}

// MuxPSI marshals an arbitrary PSI section (e.g. an inline SCTE-35 cue)
// and wraps it into a single TS packet on pid, pusi = true.
func (m *Muxer) MuxPSI(pid uint16, section *PSISection) ([]byte, error) {
	body, err := EncodePSISection(section)
	if err != nil {
		return nil, err
	}
	p := &Packet{
		Header: PacketHeader{
			PayloadUnitStartIndicator: true,
			PID:                       pid,
			PIDClass:                  ClassifyPID(pid),
			ContinuityCounter:         m.nextCC(pid),
		},
		Payload: body,
	}
	return WritePacket(p)
}

// MuxPAT builds and wraps the program's PAT (§4.10), then bumps the
// PAT version.
func (m *Muxer) MuxPAT() ([]byte, error) {
	pat := NewPATData(m.transportStreamID)
	pat.Programs[m.programNumber] = m.pmtPID

	section := &PSISection{
		Header: PSIHeader{
			TableID:                0x00,
			TableType:              TableTypePAT,
			SectionSyntaxIndicator: true,
			TransportStreamID:      m.transportStreamID,
			VersionNumber:          m.patVersion,
			CurrentNextIndicator:   true,
		},
		PAT: pat,
	}

	b, err := m.MuxPSI(0x0000, section)
	if err != nil {
		return nil, err
	}
	m.patVersion++
	return b, nil
}

// MuxPMT builds and wraps the program's PMT (§4.10), then bumps the
// PMT version.
func (m *Muxer) MuxPMT() ([]byte, error) {
	pmt := NewPMTData(m.programNumber, m.pcrPID)
	pmt.Descriptors = m.descriptors
	for pid, es := range m.streams {
		pmt.Streams[pid] = PMTStream{PID: pid, StreamType: es.StreamType, Category: es.Category}
	}

	section := &PSISection{
		Header: PSIHeader{
			TableID:                0x02,
			TableType:              TableTypePMT,
			SectionSyntaxIndicator: true,
			TransportStreamID:      m.programNumber, // table_id_extension = program_number for a PMT.
			VersionNumber:          m.pmtVersion,
			CurrentNextIndicator:   true,
		},
		PMT: pmt,
	}

	b, err := m.MuxPSI(m.pmtPID, section)
	if err != nil {
		return nil, err
	}
	m.pmtVersion++
	return b, nil
}

// MuxPCR emits a zero-payload TS packet on the PCR PID carrying pcrNS
// in its adaptation field.
func (m *Muxer) MuxPCR(pcrNS int64) ([]byte, error) {
	if m.pcrPID == noPCRPID {
		return nil, fmt.Errorf("%w", ErrPCRPIDInvalid)
	}
	p := &Packet{
		Header: PacketHeader{
			PID:               m.pcrPID,
			PIDClass:          ClassifyPID(m.pcrPID),
			ContinuityCounter: m.nextCC(m.pcrPID),
		},
		AdaptationField: &AdaptationField{PCR: &PCR{Nanoseconds: pcrNS}},
	}
	return WritePacket(p)
}

// sampleOptions configures a single MuxSample call.
type sampleOptions struct {
	dts     *int64
	sync    bool
	sendPCR bool
}

// SampleOpt configures a MuxSample call.
type SampleOpt func(*sampleOptions)

// WithSampleDTS attaches a DTS distinct from PTS.
func WithSampleDTS(ns int64) SampleOpt {
	return func(o *sampleOptions) { o.dts = &ns }
}

// WithRandomAccess marks the sample's first packet with
// random_access_indicator.
func WithRandomAccess() SampleOpt {
	return func(o *sampleOptions) { o.sync = true }
}

// WithPCRAttached attaches a PCR (equal to dts, or pts if no dts) to
// the sample's first packet.
func WithPCRAttached() SampleOpt {
	return func(o *sampleOptions) { o.sendPCR = true }
}

// MuxSample builds a PES around payload/ptsNS (and an optional DTS),
// chunks it into TS packets on pid, and returns their encoded bytes in
// order (§4.10). The first packet carries at most 176 payload bytes to
// leave room for an adaptation field; subsequent packets carry up to
// 184.
func (m *Muxer) MuxSample(pid uint16, payload []byte, ptsNS int64, opts ...SampleOpt) ([][]byte, error) {
	es, ok := m.streams[pid]
	if !ok {
		return nil, fmt.Errorf("%w: PID %d", ErrPIDNotFound, pid)
	}

	so := &sampleOptions{}
	for _, opt := range opts {
		opt(so)
	}

	pts := ptsNS
	pes := &PES{StreamID: es.PESStreamID, PTS: &pts, DTS: so.dts, Data: payload}
	body, err := EncodePES(pes)
	if err != nil {
		return nil, err
	}

	var pkts [][]byte
	for first := true; first || len(body) > 0; first = false {
		limit := 184
		if first {
			limit = 176
		}
		chunkLen := limit
		if len(body) < chunkLen {
			chunkLen = len(body)
		}
		chunk := body[:chunkLen]
		body = body[chunkLen:]

		p := &Packet{
			Header: PacketHeader{
				PID:               pid,
				PIDClass:          ClassifyPID(pid),
				ContinuityCounter: m.nextCC(pid),
			},
			Payload: chunk,
		}
		if first {
			p.Header.PayloadUnitStartIndicator = true
			if so.sync || so.sendPCR {
				af := &AdaptationField{RandomAccessIndicator: so.sync}
				if so.sendPCR {
					pcrNS := ptsNS
					if so.dts != nil {
						pcrNS = *so.dts
					}
					af.PCR = &PCR{Nanoseconds: pcrNS}
				}
				p.AdaptationField = af
			}
		}

		b, werr := WritePacket(p)
		if werr != nil {
			return pkts, werr
		}
		pkts = append(pkts, b)
	}
	return pkts, nil
}
