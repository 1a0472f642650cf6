package tscore

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
)

// PATData is a decoded Program Association Table, §3/§4.3. Programs
// maps program_number to the PID of that program's PMT. Program 0 is
// conventionally the NIT and is carried through as-is.
type PATData struct {
	TransportStreamID uint16
	Programs          map[uint16]uint16 // program_number -> pmt_pid
}

// NewPATData creates an empty PAT for the given transport stream id.
func NewPATData(transportStreamID uint16) *PATData {
	return &PATData{TransportStreamID: transportStreamID, Programs: map[uint16]uint16{}}
}

// ParsePATBody decodes a PAT table body (the bytes following the PSI
// long-form header, excluding CRC). The body must be a multiple of 4
// bytes; each entry is program_number:16, reserved:3, pid:13.
func ParsePATBody(body []byte, transportStreamID uint16) (*PATData, error) {
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("%w: PAT body length %d isn't a multiple of 4", ErrInvalidData, len(body))
	}

	d := NewPATData(transportStreamID)
	r := bitio.NewCountReader(bytes.NewReader(body))
	for i := 0; i < len(body)/4; i++ {
		programNumber := uint16(r.TryReadBits(16))
		_ = r.TryReadBits(3) // Reserved.
		pid := uint16(r.TryReadBits(13))
		d.Programs[programNumber] = pid
	}
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, r.TryError)
	}
	return d, nil
}

// EncodePATBody is the inverse of ParsePATBody.
func EncodePATBody(d *PATData) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	for _, programNumber := range sortedUint16Keys(d.Programs) {
		w.TryWriteBits(uint64(programNumber), 16)
		w.TryWriteBits(0b111, 3) // Reserved.
		w.TryWriteBits(uint64(d.Programs[programNumber]), 13)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding PAT body: %w", err)
	}
	return buf.Bytes(), nil
}
