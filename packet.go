package tscore

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
)

// PacketSize is the fixed size, in bytes, of a transport stream packet.
const PacketSize = 188

const syncByte = 0x47

// Scrambling control values, carried 2 bits wide in the packet header.
const (
	ScramblingNone     uint8 = 0b00
	ScramblingReserved uint8 = 0b01
	ScramblingEvenKey  uint8 = 0b10
	ScramblingOddKey   uint8 = 0b11
)

// Adaptation field control values.
const (
	AdaptationFieldControlPayloadOnly    uint8 = 0b01
	AdaptationFieldControlAdaptationOnly uint8 = 0b10
	AdaptationFieldControlBoth           uint8 = 0b11
	AdaptationFieldControlReserved       uint8 = 0b00
)

// PIDClass categorises a PID so the demuxer knows which decode path to
// take without consulting PAT/PMT state.
type PIDClass int

const (
	PIDClassUnsupported PIDClass = iota
	PIDClassPAT
	PIDClassPSI
	PIDClassNull
)

// ClassifyPID returns the structural class of a PID, per §3/§4.7. This
// is independent of whatever the PAT/PMT have established about the PID
// (e.g. a PMT PID in the "user" range is still PIDClassPSI here; the
// demuxer additionally consults its pids_with_pmt map).
func ClassifyPID(pid uint16) PIDClass {
	switch {
	case pid == 0x0000:
		return PIDClassPAT
	case pid == 0x1fff:
		return PIDClassNull
	case (pid >= 0x0020 && pid <= 0x1ffa) || (pid >= 0x1ffc && pid <= 0x1ffe):
		return PIDClassPSI
	default:
		return PIDClassUnsupported
	}
}

// PCR is a Program Clock Reference expressed in nanoseconds on the
// unified internal timeline.
type PCR struct {
	Nanoseconds int64
}

// AdaptationField represents a TS packet adaptation field. Only the
// subset of ISO 13818-1 fields the core cares about (PCR, discontinuity
// and random access flags) is modelled; private data and the extension
// field are skipped on decode and never produced on encode.
type AdaptationField struct {
	DiscontinuityIndicator bool
	RandomAccessIndicator  bool
	ESPriorityIndicator    bool
	PCR                    *PCR
}

// PacketHeader carries the fixed-position fields of a TS packet header.
type PacketHeader struct {
	TransportErrorIndicator    bool
	PayloadUnitStartIndicator  bool
	TransportPriority          bool
	PID                        uint16
	PIDClass                   PIDClass
	TransportScramblingControl uint8
	AdaptationFieldControl     uint8
	ContinuityCounter          uint8
}

// Packet is a single, fully parsed 188-byte transport stream frame.
type Packet struct {
	Header          PacketHeader
	AdaptationField *AdaptationField
	Payload         []byte
}

// PUSI is shorthand for Header.PayloadUnitStartIndicator.
func (p *Packet) PUSI() bool { return p.Header.PayloadUnitStartIndicator }

// PID is shorthand for Header.PID.
func (p *Packet) PID() uint16 { return p.Header.PID }

// ParsePacket decodes a single 188-byte transport stream frame.
func ParsePacket(b []byte) (*Packet, error) {
	if len(b) != PacketSize {
		return nil, fmt.Errorf("%w: packet must be %d bytes, got %d", ErrInvalidData, PacketSize, len(b))
	}
	if b[0] != syncByte {
		return nil, fmt.Errorf("%w: missing sync byte", ErrInvalidPacket)
	}

	r := bitio.NewCountReader(bytes.NewReader(b[1:]))

	p := &Packet{}
	h := &p.Header

	h.TransportErrorIndicator = r.TryReadBool()
	h.PayloadUnitStartIndicator = r.TryReadBool()
	h.TransportPriority = r.TryReadBool()
	h.PID = uint16(r.TryReadBits(13))
	h.PIDClass = ClassifyPID(h.PID)
	h.TransportScramblingControl = uint8(r.TryReadBits(2))
	h.AdaptationFieldControl = uint8(r.TryReadBits(2))
	h.ContinuityCounter = uint8(r.TryReadBits(4))

	if r.TryError != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPacket, r.TryError)
	}

	if h.TransportScramblingControl == ScramblingEvenKey || h.TransportScramblingControl == ScramblingOddKey {
		return nil, fmt.Errorf("%w: scrambled payload", ErrUnsupportedPacket)
	}

	switch h.AdaptationFieldControl {
	case AdaptationFieldControlReserved:
		return nil, fmt.Errorf("%w: reserved adaptation field control", ErrUnsupportedPacket)
	case AdaptationFieldControlAdaptationOnly:
		af, err := parseAdaptationField(r)
		if err != nil {
			return nil, err
		}
		p.AdaptationField = af
	case AdaptationFieldControlBoth:
		af, err := parseAdaptationField(r)
		if err != nil {
			return nil, err
		}
		p.AdaptationField = af
		p.Payload = remainingBytes(r)
	case AdaptationFieldControlPayloadOnly:
		p.Payload = remainingBytes(r)
	}

	if r.TryError != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, r.TryError)
	}
	return p, nil
}

// remainingBytes reads whatever is left on a byte-aligned bitio reader
// wrapping a fixed-size byte slice.
func remainingBytes(r *bitio.CountReader) []byte {
	left := (188*8 - 8 - r.BitsCount) / 8
	if left <= 0 {
		return nil
	}
	buf := make([]byte, left)
	tryReadFull(r, buf)
	return buf
}

// parseAdaptationField parses the adaptation field, assuming r is
// positioned right after the packet header.
func parseAdaptationField(r *bitio.CountReader) (*AdaptationField, error) {
	length := int(r.TryReadByte())
	af := &AdaptationField{}

	startBits := r.BitsCount
	if length == 0 {
		return af, r.TryError
	}

	af.DiscontinuityIndicator = r.TryReadBool()
	af.RandomAccessIndicator = r.TryReadBool()
	af.ESPriorityIndicator = r.TryReadBool()
	hasPCR := r.TryReadBool()
	hasOPCR := r.TryReadBool()
	hasSplicingPoint := r.TryReadBool()
	hasTransportPrivateData := r.TryReadBool()
	hasExtension := r.TryReadBool()

	if hasPCR {
		base := int64(r.TryReadBits(33))
		_ = r.TryReadBits(6) // Reserved.
		ext := int64(r.TryReadBits(9))
		af.PCR = &PCR{Nanoseconds: NewClockReference(base, ext).Nanoseconds()}
	}
	if hasOPCR {
		_ = r.TryReadBits(48) // OPCR not modelled; skip.
	}
	if hasSplicingPoint {
		_ = r.TryReadByte() // splice_countdown
	}
	if hasTransportPrivateData {
		n := int(r.TryReadByte())
		skip := make([]byte, n)
		tryReadFull(r, skip)
	}
	if hasExtension {
		n := int(r.TryReadByte())
		skip := make([]byte, n)
		tryReadFull(r, skip)
	}

	// Skip any stuffing bytes left in the declared adaptation field
	// length (flags byte + optional fields already consumed).
	consumedBytes := (r.BitsCount - startBits) / 8
	if stuffing := length - int(consumedBytes); stuffing > 0 {
		skip := make([]byte, stuffing)
		tryReadFull(r, skip)
	}

	if r.TryError != nil {
		return nil, fmt.Errorf("%w: adaptation field: %v", ErrInvalidData, r.TryError)
	}
	return af, nil
}

// ParseMany decodes as many whole 188-byte frames as fit in b. The
// trailing 0..187 bytes are returned as tail with ErrNotEnoughData so
// the caller (typically the demuxer) can reprepend them to the next
// chunk. Any other decode error stops parsing and returns the 188-byte
// slice that triggered it as tail, alongside the packets successfully
// parsed so far.
func ParseMany(b []byte) (pkts []*Packet, tail []byte, err error) {
	for len(b) >= PacketSize {
		p, perr := ParsePacket(b[:PacketSize])
		if perr != nil {
			return pkts, b[:PacketSize], perr
		}
		pkts = append(pkts, p)
		b = b[PacketSize:]
	}
	if len(b) > 0 {
		return pkts, b, ErrNotEnoughData
	}
	return pkts, nil, nil
}

// WritePacket encodes a Packet into a 188-byte frame, building an
// adaptation field for flags/PCR/stuffing as needed.
func WritePacket(p *Packet) ([]byte, error) {
	needsAdaptation := p.AdaptationField != nil || len(p.Payload) < PacketSize-4

	afBytes, err := encodeAdaptationField(p.AdaptationField, len(p.Payload), needsAdaptation)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	w.TryWriteByte(syncByte)
	w.TryWriteBool(false) // transport_error_indicator
	w.TryWriteBool(p.Header.PayloadUnitStartIndicator)
	w.TryWriteBool(false) // transport_priority
	w.TryWriteBits(uint64(p.Header.PID), 13)
	w.TryWriteBits(uint64(p.Header.TransportScramblingControl), 2)

	afc := AdaptationFieldControlPayloadOnly
	if needsAdaptation && len(p.Payload) > 0 {
		afc = AdaptationFieldControlBoth
	} else if needsAdaptation {
		afc = AdaptationFieldControlAdaptationOnly
	}
	w.TryWriteBits(uint64(afc), 2)
	w.TryWriteBits(uint64(p.Header.ContinuityCounter), 4)

	if w.TryError != nil {
		return nil, fmt.Errorf("writing packet header: %w", w.TryError)
	}

	if len(afBytes) > 0 {
		w.TryWrite(afBytes)
	}
	if afc != AdaptationFieldControlAdaptationOnly {
		w.TryWrite(p.Payload)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing packet writer: %w", err)
	}

	out := buf.Bytes()
	if len(out) != PacketSize {
		return nil, fmt.Errorf("%w: encoded packet is %d bytes, want %d", ErrInvalidData, len(out), PacketSize)
	}
	return out, nil
}

// encodeAdaptationField builds the adaptation-field byte sequence
// (length-prefixed), including stuffing so the final packet is exactly
// PacketSize bytes.
func encodeAdaptationField(af *AdaptationField, payloadLen int, needed bool) ([]byte, error) {
	if !needed {
		return nil, nil
	}

	bodyLen := 1 // flags byte
	hasPCR := af != nil && af.PCR != nil
	if hasPCR {
		bodyLen += 6
	}

	// Total adaptation field bytes (length byte + body) must make the
	// whole packet 188 bytes: 4 header bytes + 1 length byte + body + payload.
	total := PacketSize - 4 - payloadLen
	if total < 1 {
		return nil, fmt.Errorf("%w: payload too large to fit with adaptation field", ErrInvalidData)
	}
	// A 183-byte payload leaves room for the length byte only: emit an
	// empty (adaptation_field_length 0) field, which carries no flags.
	if total == 1 && !hasPCR && (af == nil || (!af.DiscontinuityIndicator && !af.RandomAccessIndicator && !af.ESPriorityIndicator)) {
		return []byte{0x00}, nil
	}
	stuffing := total - 1 - bodyLen
	if stuffing < 0 {
		return nil, fmt.Errorf("%w: adaptation field too small for PCR/flags", ErrInvalidData)
	}

	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	w.TryWriteByte(uint8(total - 1))

	var discontinuity, rai, esPriority bool
	if af != nil {
		discontinuity = af.DiscontinuityIndicator
		rai = af.RandomAccessIndicator
		esPriority = af.ESPriorityIndicator
	}
	w.TryWriteBool(discontinuity)
	w.TryWriteBool(rai)
	w.TryWriteBool(esPriority)
	w.TryWriteBool(hasPCR)
	w.TryWriteBool(false) // OPCR
	w.TryWriteBool(false) // splicing point
	w.TryWriteBool(false) // transport private data
	w.TryWriteBool(false) // extension

	if hasPCR {
		cr := ClockReferenceFromNs(af.PCR.Nanoseconds)
		w.TryWriteBits(uint64(cr.Base), 33)
		w.TryWriteBits(0x3f, 6) // Reserved.
		w.TryWriteBits(uint64(cr.Extension), 9)
	}

	for i := 0; i < stuffing; i++ {
		w.TryWriteByte(0xff)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding adaptation field: %w", err)
	}
	return buf.Bytes(), nil
}
