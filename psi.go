package tscore

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/icza/bitio"
)

// Table type tags, per the dispatch table in §6.
const (
	TableTypePAT         = "pat"
	TableTypeCAT         = "cat"
	TableTypePMT         = "pmt"
	TableTypeTSDT        = "tsdt"
	TableTypeISOMetadata = "iso_metadata"
	TableTypeReserved    = "reserved"
	TableTypeDSMCC       = "dsmcc"
	TableTypeDVB         = "dvb"
	TableTypeCA          = "ca"
	TableTypeUserDefined = "user_defined"
	TableTypeATSCSCTE    = "atsc_scte"
	TableTypeSCTE35      = "scte35"
	TableTypeForbidden   = "forbidden"
)

// TableTypeForID maps a table_id to its table type per the dispatch
// table in §6.
func TableTypeForID(id uint8) string {
	switch {
	case id == 0x00:
		return TableTypePAT
	case id == 0x01:
		return TableTypeCAT
	case id == 0x02:
		return TableTypePMT
	case id == 0x03:
		return TableTypeTSDT
	case id >= 0x04 && id <= 0x07:
		return TableTypeISOMetadata
	case id >= 0x08 && id <= 0x39:
		return TableTypeReserved
	case id >= 0x3a && id <= 0x3f:
		return TableTypeDSMCC
	case id >= 0x40 && id <= 0x7f:
		return TableTypeDVB
	case id >= 0x80 && id <= 0x8f:
		return TableTypeCA
	case id >= 0x90 && id <= 0xbf:
		return TableTypeUserDefined
	case id == 0xfc:
		return TableTypeSCTE35
	case (id >= 0xc0 && id <= 0xfb) || id == 0xfd || id == 0xfe:
		return TableTypeATSCSCTE
	default: // 0xff
		return TableTypeForbidden
	}
}

// maxSectionLength is the largest value section_length may carry (§3).
const maxSectionLength = 4093

// PSIHeader is the header of a PSI section, §3.
type PSIHeader struct {
	TableID                uint8
	TableType              string
	SectionSyntaxIndicator bool
	PrivateBit             bool
	SectionLength          uint16

	// Long-form fields, present iff SectionSyntaxIndicator.
	TransportStreamID    uint16
	VersionNumber        uint8
	CurrentNextIndicator bool
	SectionNumber        uint8
	LastSectionNumber    uint8
}

// PSISection is a decoded (or to-be-encoded) PSI section. Table is a
// closed tagged variant: at most one of PAT/PMT/SCTE35 is set; Raw
// always carries the table body bytes, whether or not a structured
// decode succeeded, so the caller never loses data on a decode failure
// (§4.2 failure modes).
type PSISection struct {
	Header PSIHeader
	PAT    *PATData
	PMT    *PMTData
	SCTE35 *SCTE35Data
	Raw    []byte
	CRC    uint32
}

// ParsePSISection decodes a single PSI section from a fully
// reassembled payload (pointer field included, as it appears on the
// wire in the first packet of the section). section_length > 4093
// fails with ErrInvalidHeader; a body shorter than content_length+4
// fails with ErrInvalidData.
func ParsePSISection(data []byte) (*PSISection, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty PSI payload", ErrInvalidHeader)
	}

	pointerField := int(data[0])
	data = data[1:]
	if len(data) < pointerField {
		return nil, fmt.Errorf("%w: pointer field filler truncated", ErrInvalidData)
	}
	data = data[pointerField:]

	if len(data) < 3 {
		return nil, fmt.Errorf("%w: PSI header truncated", ErrInvalidHeader)
	}

	r := bitio.NewCountReader(bytes.NewReader(data))
	h := PSIHeader{}
	h.TableID = r.TryReadByte()
	h.TableType = TableTypeForID(h.TableID)
	h.SectionSyntaxIndicator = r.TryReadBool()
	h.PrivateBit = r.TryReadBool()
	_ = r.TryReadBits(2) // Reserved.
	h.SectionLength = uint16(r.TryReadBits(12))
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, r.TryError)
	}
	if h.SectionLength > maxSectionLength {
		return nil, fmt.Errorf("%w: section_length %d exceeds %d", ErrInvalidHeader, h.SectionLength, maxSectionLength)
	}

	if len(data) < 3+int(h.SectionLength) {
		return nil, fmt.Errorf("%w: section body shorter than declared length", ErrInvalidData)
	}

	contentLength := int(h.SectionLength) - 4
	if h.SectionSyntaxIndicator {
		h.TransportStreamID = uint16(r.TryReadBits(16))
		_ = r.TryReadBits(2) // Reserved.
		h.VersionNumber = uint8(r.TryReadBits(5))
		h.CurrentNextIndicator = r.TryReadBool()
		h.SectionNumber = r.TryReadByte()
		h.LastSectionNumber = r.TryReadByte()
		contentLength -= 5
		if r.TryError != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, r.TryError)
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("%w: section_length too small for its own header", ErrInvalidHeader)
	}

	body := make([]byte, contentLength)
	tryReadFull(r, body)
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, r.TryError)
	}

	crcBytes := make([]byte, 4)
	tryReadFull(r, crcBytes)
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, r.TryError)
	}

	s := &PSISection{
		Header: h,
		Raw:    body,
		CRC:    binary.BigEndian.Uint32(crcBytes),
	}

	// Table-specific decode is best-effort: a failure here is never
	// fatal to the PSI section itself (§4.2), and ingest-side CRC
	// validation isn't required (§7) -- callers that care can recompute
	// and compare against s.CRC.
	switch h.TableType {
	case TableTypePAT:
		if pat, err := ParsePATBody(body, h.TransportStreamID); err == nil {
			s.PAT = pat
		}
	case TableTypePMT:
		if pmt, err := ParsePMTBody(body, h.TransportStreamID); err == nil {
			s.PMT = pmt
		}
	case TableTypeSCTE35:
		if sc, err := ParseSCTE35Body(body); err == nil {
			s.SCTE35 = sc
		}
	}

	return s, nil
}

// EncodePSISection builds the wire bytes of a PSI section, including
// the leading pointer field byte and the trailing CRC-32/MPEG-2.
func EncodePSISection(s *PSISection) ([]byte, error) {
	var body []byte
	var err error

	switch {
	case s.PAT != nil:
		body, err = EncodePATBody(s.PAT)
	case s.PMT != nil:
		body, err = EncodePMTBody(s.PMT)
	case s.SCTE35 != nil:
		body, err = EncodeSCTE35Body(s.SCTE35)
	default:
		body = s.Raw
	}
	if err != nil {
		return nil, fmt.Errorf("encoding PSI table body: %w", err)
	}

	sectionLength := len(body) + 4
	if s.Header.SectionSyntaxIndicator {
		sectionLength += 5
	}
	if sectionLength > maxSectionLength {
		return nil, fmt.Errorf("%w: section_length %d exceeds %d", ErrInvalidHeader, sectionLength, maxSectionLength)
	}

	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	w.TryWriteByte(s.Header.TableID)
	w.TryWriteBool(s.Header.SectionSyntaxIndicator)
	w.TryWriteBool(s.Header.PrivateBit)
	w.TryWriteBits(0b11, 2) // Reserved.
	w.TryWriteBits(uint64(sectionLength), 12)

	if s.Header.SectionSyntaxIndicator {
		w.TryWriteBits(uint64(s.Header.TransportStreamID), 16)
		w.TryWriteBits(0b11, 2) // Reserved.
		w.TryWriteBits(uint64(s.Header.VersionNumber), 5)
		w.TryWriteBool(s.Header.CurrentNextIndicator)
		w.TryWriteByte(s.Header.SectionNumber)
		w.TryWriteByte(s.Header.LastSectionNumber)
	}

	w.TryWrite(body)
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("writing PSI header: %w", err)
	}

	crc := computeCRC32(buf.Bytes())
	crcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBytes, crc)

	out := make([]byte, 0, 1+buf.Len()+4)
	out = append(out, 0x00) // Pointer field.
	out = append(out, buf.Bytes()...)
	out = append(out, crcBytes...)
	return out, nil
}
