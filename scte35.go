package tscore

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
)

// Splice command types, ANSI/SCTE 35 §9.7.1.
const (
	SpliceCommandTypeNull                 uint8 = 0x00
	SpliceCommandTypeSchedule             uint8 = 0x04
	SpliceCommandTypeInsert               uint8 = 0x05
	SpliceCommandTypeTimeSignal           uint8 = 0x06
	SpliceCommandTypeBandwidthReservation uint8 = 0x07
	SpliceCommandTypePrivate              uint8 = 0xff
)

// knownSpliceCommandTypes are the types §4.5 recognises structurally
// or as an empty, retained-type payload. Anything else is
// ErrUnknownSpliceType.
var knownSpliceCommandTypes = map[uint8]bool{
	SpliceCommandTypeNull:                 true,
	SpliceCommandTypeSchedule:             true,
	SpliceCommandTypeInsert:               true,
	SpliceCommandTypeTimeSignal:           true,
	SpliceCommandTypeBandwidthReservation: true,
	SpliceCommandTypePrivate:              true,
}

// SpliceTime carries a splice_time() structure: a PTS in nanoseconds,
// present whenever splice_immediate_flag is false.
type SpliceTime struct {
	PTS int64 // nanoseconds
}

// BreakDuration carries a break_duration() structure.
type BreakDuration struct {
	AutoReturn bool
	Duration   int64 // nanoseconds
}

// SpliceInsert is a decoded splice_insert() command, §4.5. Only the
// program_splice (not component-level) profile is supported: a
// splice_insert with program_splice_flag == 0 fails to decode.
type SpliceInsert struct {
	EventID              uint32
	CancelIndicator      bool
	OutOfNetwork         bool
	BreakDurationFlag    bool
	SpliceImmediateFlag  bool
	EventIDComplianceFlag bool
	SpliceTime           *SpliceTime
	BreakDuration        *BreakDuration
	UniqueProgramID      uint16
	AvailNum             uint8
	AvailsExpected       uint8
}

// SCTE35Data is a decoded splice_info_section, §3/§4.5.
type SCTE35Data struct {
	ProtocolVersion uint8
	Encrypted       bool
	EncryptionAlgo  uint8
	PTSAdjustment   int64 // nanoseconds
	CWIndex         uint8
	Tier            uint16
	CommandType     uint8
	SpliceInsert    *SpliceInsert // non-nil iff CommandType == SpliceCommandTypeInsert; a cancelled insert carries only EventID and CancelIndicator
	DescriptorLoop  []byte        // raw splice_descriptor() loop, not structurally parsed
	ECRC32          uint32        // present iff Encrypted
}

// NewSpliceInsertSCTE35 builds a splice_insert SCTE-35 section with the
// conventional defaults (protocol_version 0, tier 0xFFF).
func NewSpliceInsertSCTE35(eventID uint32, ptsAdjustment int64, insert *SpliceInsert) *SCTE35Data {
	return &SCTE35Data{
		ProtocolVersion: 0,
		PTSAdjustment:   ptsAdjustment,
		Tier:            0xfff,
		CommandType:     SpliceCommandTypeInsert,
		SpliceInsert:    insert,
	}
}

// ParseSCTE35Body decodes an splice_info_section body (the bytes
// following the PSI section header, excluding CRC; SCTE-35 sections use
// the short form, so this starts right after section_length).
func ParseSCTE35Body(body []byte) (*SCTE35Data, error) {
	r := bitio.NewCountReader(bytes.NewReader(body))

	d := &SCTE35Data{}
	d.ProtocolVersion = r.TryReadByte()
	d.Encrypted = r.TryReadBool()
	d.EncryptionAlgo = uint8(r.TryReadBits(6))
	d.PTSAdjustment = TSToNs(int64(r.TryReadBits(33)))
	d.CWIndex = r.TryReadByte()
	d.Tier = uint16(r.TryReadBits(12))
	spliceCommandLength := int(r.TryReadBits(12))
	d.CommandType = r.TryReadByte()
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: splice_info_section header: %v", ErrInvalidData, r.TryError)
	}

	if !knownSpliceCommandTypes[d.CommandType] {
		return nil, fmt.Errorf("%w: splice command type %#x", ErrUnknownSpliceType, d.CommandType)
	}

	// splice_command_length counts splice_command_type (already read)
	// plus the command body, per §4.2's analogous section_length
	// convention.
	commandData := make([]byte, spliceCommandLength-1)
	tryReadFull(r, commandData)
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: splice command body: %v", ErrInvalidData, r.TryError)
	}

	if d.CommandType == SpliceCommandTypeInsert {
		insert, err := parseSpliceInsert(commandData)
		if err != nil {
			return nil, err
		}
		d.SpliceInsert = insert
	}

	descriptorLoopLength := int(r.TryReadBits(16))
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: descriptor_loop_length: %v", ErrInvalidData, r.TryError)
	}
	d.DescriptorLoop = make([]byte, descriptorLoopLength)
	tryReadFull(r, d.DescriptorLoop)
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: descriptor loop: %v", ErrInvalidData, r.TryError)
	}

	if d.Encrypted {
		d.ECRC32 = uint32(r.TryReadBits(32))
		if r.TryError != nil {
			return nil, fmt.Errorf("%w: E_CRC32: %v", ErrInvalidData, r.TryError)
		}
	}

	return d, nil
}

// parseSpliceInsert decodes a splice_insert() command body.
func parseSpliceInsert(data []byte) (*SpliceInsert, error) {
	r := bitio.NewCountReader(bytes.NewReader(data))

	ins := &SpliceInsert{}
	ins.EventID = uint32(r.TryReadBits(32))
	ins.CancelIndicator = r.TryReadBool()
	_ = r.TryReadBits(7) // Reserved.
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: splice_insert: %v", ErrSCTE35Unmarshal, r.TryError)
	}
	if ins.CancelIndicator {
		return ins, nil
	}

	ins.OutOfNetwork = r.TryReadBool()
	programSpliceFlag := r.TryReadBool()
	ins.BreakDurationFlag = r.TryReadBool()
	ins.SpliceImmediateFlag = r.TryReadBool()
	ins.EventIDComplianceFlag = r.TryReadBool()
	_ = r.TryReadBits(3) // Reserved.
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: splice_insert: %v", ErrSCTE35Unmarshal, r.TryError)
	}
	if !programSpliceFlag {
		return nil, fmt.Errorf("%w: splice_insert with program_splice_flag=0 (component splicing) is not supported", ErrSCTE35Unmarshal)
	}

	if !ins.SpliceImmediateFlag {
		_ = r.TryReadBool()  // time_specified_flag, assumed 1.
		_ = r.TryReadBits(6) // Reserved.
		pts := TSToNs(int64(r.TryReadBits(33)))
		ins.SpliceTime = &SpliceTime{PTS: pts}
	}

	if ins.BreakDurationFlag {
		autoReturn := r.TryReadBool()
		_ = r.TryReadBits(6) // Reserved.
		dur := TSToNs(int64(r.TryReadBits(33)))
		ins.BreakDuration = &BreakDuration{AutoReturn: autoReturn, Duration: dur}
	}

	ins.UniqueProgramID = uint16(r.TryReadBits(16))
	ins.AvailNum = r.TryReadByte()
	ins.AvailsExpected = r.TryReadByte()
	if r.TryError != nil {
		return nil, fmt.Errorf("%w: splice_insert: %v", ErrSCTE35Unmarshal, r.TryError)
	}
	return ins, nil
}

// EncodeSCTE35Body is the inverse of ParseSCTE35Body.
func EncodeSCTE35Body(d *SCTE35Data) ([]byte, error) {
	var commandData []byte
	if d.CommandType == SpliceCommandTypeInsert && d.SpliceInsert != nil {
		var err error
		commandData, err = encodeSpliceInsert(d.SpliceInsert)
		if err != nil {
			return nil, err
		}
	}

	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	w.TryWriteByte(d.ProtocolVersion)
	w.TryWriteBool(d.Encrypted)
	w.TryWriteBits(uint64(d.EncryptionAlgo), 6)
	w.TryWriteBits(uint64(NsToTS(d.PTSAdjustment)), 33)
	w.TryWriteByte(d.CWIndex)
	w.TryWriteBits(uint64(d.Tier), 12)
	w.TryWriteBits(uint64(len(commandData))+1, 12) // +1 for splice_command_type itself.
	w.TryWriteByte(d.CommandType)
	w.TryWrite(commandData)
	w.TryWriteBits(uint64(len(d.DescriptorLoop)), 16)
	w.TryWrite(d.DescriptorLoop)
	if d.Encrypted {
		w.TryWriteBits(uint64(d.ECRC32), 32)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding splice_info_section: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeSpliceInsert is the inverse of parseSpliceInsert.
func encodeSpliceInsert(ins *SpliceInsert) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	w.TryWriteBits(uint64(ins.EventID), 32)
	w.TryWriteBool(ins.CancelIndicator)
	w.TryWriteBits(0b1111111, 7) // Reserved.

	if !ins.CancelIndicator {
		w.TryWriteBool(ins.OutOfNetwork)
		w.TryWriteBool(true) // program_splice_flag: component splicing unsupported.
		w.TryWriteBool(ins.BreakDurationFlag)
		w.TryWriteBool(ins.SpliceImmediateFlag)
		w.TryWriteBool(ins.EventIDComplianceFlag)
		w.TryWriteBits(0b111, 3) // Reserved.

		if !ins.SpliceImmediateFlag && ins.SpliceTime != nil {
			w.TryWriteBool(true)            // time_specified_flag
			w.TryWriteBits(0b111111, 6)     // Reserved.
			w.TryWriteBits(uint64(NsToTS(ins.SpliceTime.PTS)), 33)
		}

		if ins.BreakDurationFlag && ins.BreakDuration != nil {
			w.TryWriteBool(ins.BreakDuration.AutoReturn)
			w.TryWriteBits(0b111111, 6) // Reserved.
			w.TryWriteBits(uint64(NsToTS(ins.BreakDuration.Duration)), 33)
		}

		w.TryWriteBits(uint64(ins.UniqueProgramID), 16)
		w.TryWriteByte(ins.AvailNum)
		w.TryWriteByte(ins.AvailsExpected)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding splice_insert: %w", err)
	}
	return buf.Bytes(), nil
}
