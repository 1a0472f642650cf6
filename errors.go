package tscore

import "errors"

// Sentinel errors forming the stable, observable failure surface of the
// codec. Demuxer/Muxer wrap these with fmt.Errorf("%w: ...") for context;
// callers should match with errors.Is.
var (
	// ErrInvalidPacket is returned when a 188-byte frame fails structural
	// validation (missing sync byte, unreadable header).
	ErrInvalidPacket = errors.New("tscore: invalid packet")

	// ErrInvalidData is returned when a length field inside an otherwise
	// well-formed frame is inconsistent with the bytes available.
	ErrInvalidData = errors.New("tscore: invalid data")

	// ErrNotEnoughData is returned by ParseMany when the trailing bytes
	// are shorter than one full TS packet.
	ErrNotEnoughData = errors.New("tscore: not enough data")

	// ErrUnsupportedPacket is returned for a reserved adaptation field
	// control value or a scrambled PES payload.
	ErrUnsupportedPacket = errors.New("tscore: unsupported packet")

	// ErrInvalidHeader is returned when a PSI header is malformed.
	ErrInvalidHeader = errors.New("tscore: invalid PSI header")

	// ErrMultiStreamID is returned when fragments queued for a single PES
	// carry conflicting stream ids.
	ErrMultiStreamID = errors.New("tscore: PES fragments carry conflicting stream ids")

	// ErrSizeMismatch is returned when an accumulated PES is shorter than
	// its declared length.
	ErrSizeMismatch = errors.New("tscore: accumulated PES shorter than declared length")

	// ErrSCTE35Unmarshal is returned when a SCTE-35 body fails to parse.
	ErrSCTE35Unmarshal = errors.New("tscore: scte-35 unmarshal error")

	// ErrUnknownSpliceType is returned for a splice_command_type outside
	// the known set.
	ErrUnknownSpliceType = errors.New("tscore: unknown splice type")

	// ErrPIDAlreadyExists is returned by the muxer when adding an
	// elementary stream on a PID that's already in use.
	ErrPIDAlreadyExists = errors.New("tscore: PID already exists")

	// ErrPIDNotFound is returned by the muxer when referencing a PID that
	// was never declared.
	ErrPIDNotFound = errors.New("tscore: PID not found")

	// ErrPCRPIDInvalid is returned when a PCR is requested on a PID that
	// hasn't been flagged as the PCR carrier.
	ErrPCRPIDInvalid = errors.New("tscore: PCR requested on a PID that isn't the PCR carrier")

	// ErrAggregatorOverflow is returned when a single PES's accumulated
	// size breaches the configured hard limit.
	ErrAggregatorOverflow = errors.New("tscore: aggregated PES exceeds size limit")
)
