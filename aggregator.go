package tscore

import "fmt"

// maxAggregatedPESBytes bounds how much a single PES may accumulate
// across fragments before the aggregator gives up on it (§4.8 resource
// policy).
const maxAggregatedPESBytes = 16 << 20

type aggregatorState int

const (
	stateWaitingRAI aggregatorState = iota
	stateAccumulating
	stateIdleEmpty
)

// Aggregator reassembles the partial PES fragments carried by a single
// PID's TS packets into complete PES units, §4.8. It is not safe for
// concurrent use.
type Aggregator struct {
	PID     uint16
	Strict  bool
	state   aggregatorState
	queue   []*PartialPES
	size    int
}

// NewAggregator creates an aggregator for a PID. When waitRAI is true,
// the aggregator discards packets until the first one carrying
// random_access_indicator, per the waiting_rai initial state.
func NewAggregator(pid uint16, waitRAI, strict bool) *Aggregator {
	a := &Aggregator{PID: pid, Strict: strict}
	if waitRAI {
		a.state = stateWaitingRAI
	} else {
		a.state = stateAccumulating
	}
	return a
}

// Push feeds one TS packet belonging to this PID to the aggregator. It
// returns a completed PES whenever the packet's arrival finalises the
// previously queued fragments (i.e. the packet is pusi and the queue
// was non-empty). A nil, nil result means "keep accumulating".
func (a *Aggregator) Push(p *Packet) (*PES, error) {
	switch a.state {
	case stateWaitingRAI:
		if p.AdaptationField == nil || !p.AdaptationField.RandomAccessIndicator {
			return nil, nil
		}
		return nil, a.startLeader(p)

	default: // stateAccumulating, stateIdleEmpty
		if !p.PUSI() {
			frag, err := ParsePartialPES(p.Payload, false)
			if err != nil {
				return nil, a.handleError(err)
			}
			return nil, a.appendFragment(frag)
		}

		var emitted *PES
		if len(a.queue) > 0 {
			pes, err := finalizePES(a.queue)
			if err != nil {
				return nil, a.handleError(err)
			}
			emitted = pes
		}
		if err := a.startLeader(p); err != nil {
			return emitted, a.handleError(err)
		}
		return emitted, nil
	}
}

func (a *Aggregator) startLeader(p *Packet) error {
	frag, err := ParsePartialPES(p.Payload, true)
	if err != nil {
		return err
	}
	if p.AdaptationField != nil {
		frag.Discontinuity = p.AdaptationField.DiscontinuityIndicator
	}
	a.queue = []*PartialPES{frag}
	a.size = len(frag.Data)
	a.state = stateAccumulating
	return nil
}

func (a *Aggregator) appendFragment(frag *PartialPES) error {
	a.queue = append(a.queue, frag)
	a.size += len(frag.Data)
	if a.size > maxAggregatedPESBytes {
		a.reset()
		if a.Strict {
			return fmt.Errorf("%w: PID %d exceeded %d bytes", ErrAggregatorOverflow, a.PID, maxAggregatedPESBytes)
		}
	}
	return nil
}

// handleError applies the §4.8 error policy: fatal in strict mode,
// a silent reset in lenient mode. The lenient error is dropped here, so
// the caller receives nil and no Warning is emitted for it.
func (a *Aggregator) handleError(err error) error {
	a.reset()
	if a.Strict {
		return err
	}
	return nil
}

// Flush finalises whatever is queued (used on end-of-stream, §4.9).
func (a *Aggregator) Flush() (*PES, error) {
	if len(a.queue) == 0 {
		a.reset()
		return nil, nil
	}
	pes, err := finalizePES(a.queue)
	a.reset()
	if err != nil {
		if a.Strict {
			return nil, err
		}
		return nil, nil
	}
	return pes, nil
}

func (a *Aggregator) reset() {
	a.queue = nil
	a.size = 0
	a.state = stateIdleEmpty
}

// finalizePES concatenates a fragment queue into one PES, per the
// "Finalisation" rules in §4.8.
func finalizePES(fragments []*PartialPES) (*PES, error) {
	leader := fragments[0]
	if leader.StreamID == nil {
		return nil, fmt.Errorf("%w: leader PES fragment is missing a stream_id", ErrInvalidData)
	}
	streamID := *leader.StreamID

	var data []byte
	for _, f := range fragments {
		if f.StreamID != nil && *f.StreamID != streamID {
			return nil, fmt.Errorf("%w: fragment stream_id %#x conflicts with leader %#x", ErrMultiStreamID, *f.StreamID, streamID)
		}
		data = append(data, f.Data...)
	}

	length := int(leader.Length)
	switch {
	case length == 0: // Unbounded.
	case len(data) == length:
	case len(data) > length:
		data = data[:length]
	default:
		return nil, fmt.Errorf("%w: PES payload is %d bytes, declared length is %d", ErrSizeMismatch, len(data), length)
	}

	return &PES{
		StreamID:      streamID,
		PTS:           leader.PTS,
		DTS:           leader.DTS,
		IsAligned:     leader.IsAligned,
		Discontinuity: leader.Discontinuity,
		Data:          data,
	}, nil
}
