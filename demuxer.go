package tscore

import (
	"bytes"
	"errors"
	"fmt"
)

// Container is the Demuxer's output unit, §3: one decoded PES or PSI
// section, tagged with its PID and a best-effort monotonic timestamp.
type Container struct {
	PID uint16
	T   *int64 // nanoseconds, best-effort monotonic; nil if unknown.
	PES *PES
	PSI *PSISection
}

// Demuxer synchronises onto 188-byte TS packet boundaries, tracks
// PAT/PMT state, aggregates fragmented PES payloads, dispatches PSI
// tables, and corrects 33-bit timestamp rollover into a monotonic
// nanosecond timeline (§4.9). It is a single value-based state object:
// every Push/Flush call mutates it in place and returns whatever new
// Containers became available. Not safe for concurrent use.
type Demuxer struct {
	strict   bool
	waitRAI  bool
	observer Observer

	pending []byte

	pidsWithPMT map[uint16]uint16    // pmt_pid -> program_number
	streams     map[uint16]PMTStream // elementary_pid -> stream metadata
	aggregators map[uint16]*Aggregator

	ptsRollover map[uint16]*rolloverState
	dtsRollover map[uint16]*rolloverState
	lastDTS     *int64 // nanoseconds, most recent dts observed on a video PID
}

// NewDemuxer creates an empty Demuxer. By default it runs in lenient
// mode with no observer and aggregators starting in the accumulating
// state; see DemuxerOptStrict, DemuxerOptObserver, DemuxerOptWaitRAI.
func NewDemuxer(opts ...DemuxerOpt) *Demuxer {
	d := &Demuxer{
		pidsWithPMT: map[uint16]uint16{},
		streams:     map[uint16]PMTStream{},
		aggregators: map[uint16]*Aggregator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Push feeds an arbitrary-sized byte chunk to the demuxer and returns
// every Container it could produce from it, in arrival order. Partial
// trailing packets are buffered internally and completed by a later
// Push (Scenario D, §8).
func (d *Demuxer) Push(chunk []byte) ([]Container, error) {
	d.pending = append(d.pending, chunk...)

	var out []Container
	for {
		pkts, tail, err := ParseMany(d.pending)
		for _, p := range pkts {
			containers, derr := d.dispatch(p)
			if derr != nil {
				if d.strict {
					return out, derr
				}
				d.observer.emit(p.PID(), derr)
				continue
			}
			out = append(out, containers...)
		}

		switch {
		case err == nil:
			d.pending = nil
			return out, nil
		case errors.Is(err, ErrNotEnoughData):
			d.pending = tail
			return out, nil
		default:
			// A frame-level invalid_packet/invalid_data error: tail starts
			// at the byte offset where the frame failed to decode. Strict
			// mode surfaces it immediately; lenient mode drops bytes
			// forward to the next 0x47 and resumes there (§4.9, §7) —
			// this may be fewer than 188 bytes when a short run of junk
			// is immediately followed by a still-aligned valid frame
			// (Scenario F).
			if d.strict {
				return out, err
			}
			d.observer.emit(0, err)

			consumed := len(pkts) * PacketSize
			rest := d.pending[consumed:]
			if idx := bytes.IndexByte(rest[1:], syncByte); idx >= 0 {
				d.pending = rest[1+idx:]
			} else {
				d.pending = nil
				return out, nil
			}
		}
	}
}

// Flush drains every aggregator's queued fragments at end-of-stream,
// applying rollover correction to whatever final PES they finalise.
func (d *Demuxer) Flush() ([]Container, error) {
	var out []Container
	for _, pid := range sortedUint16Keys(d.aggregators) {
		pes, err := d.aggregators[pid].Flush()
		if err != nil {
			if d.strict {
				return out, err
			}
			d.observer.emit(pid, err)
			continue
		}
		if pes == nil {
			continue
		}
		t := d.correctPES(pid, pes)
		out = append(out, Container{PID: pid, T: t, PES: pes})
	}
	return out, nil
}

// dispatch routes one decoded packet per §4.9: null packets are
// dropped, aggregator-registered PIDs forward to their aggregator,
// PAT/PMT/PSI PIDs decode as PSI, and anything else is an unknown PID.
func (d *Demuxer) dispatch(p *Packet) ([]Container, error) {
	pid := p.PID()

	if p.Header.PIDClass == PIDClassNull {
		return nil, nil
	}

	if agg, ok := d.aggregators[pid]; ok {
		pes, err := agg.Push(p)
		if err != nil {
			return nil, err
		}
		if pes == nil {
			return nil, nil
		}

		t := d.correctPES(pid, pes)
		if d.streams[pid].Category == StreamCategoryVideo {
			d.lastDTS = t
		}
		return []Container{{PID: pid, T: t, PES: pes}}, nil
	}

	if p.Header.PIDClass == PIDClassPAT || d.isPMTPID(pid) || p.Header.PIDClass == PIDClassPSI {
		psi, err := ParsePSISection(p.Payload)
		if err != nil {
			return nil, err
		}
		d.applyPSI(psi)
		t := d.correctPSI(pid, psi)
		return []Container{{PID: pid, T: t, PSI: psi}}, nil
	}

	return nil, fmt.Errorf("%w: unhandled PID %d", ErrUnsupportedPacket, pid)
}

// applyPSI folds a decoded PAT/PMT into the demuxer's routing state.
func (d *Demuxer) applyPSI(psi *PSISection) {
	switch {
	case psi.PAT != nil:
		for programNumber, pmtPID := range psi.PAT.Programs {
			if programNumber == 0 { // Reserved to NIT.
				continue
			}
			d.pidsWithPMT[pmtPID] = programNumber
		}
	case psi.PMT != nil:
		for spid, stream := range psi.PMT.Streams {
			d.streams[spid] = stream
			switch stream.Category {
			case StreamCategoryVideo, StreamCategoryAudio, StreamCategoryMetadata:
				if _, ok := d.aggregators[spid]; !ok {
					d.aggregators[spid] = NewAggregator(spid, d.waitRAI, d.strict)
				}
			}
		}
	}
}

func (d *Demuxer) isPMTPID(pid uint16) bool {
	_, ok := d.pidsWithPMT[pid]
	return ok
}

// correctPES applies the §4.9 rollover correction to a PES's PTS/DTS
// and returns t = corrected_dts ?? corrected_pts. The PES's own
// PTS/DTS fields are left as decoded (single-cycle) nanoseconds.
func (d *Demuxer) correctPES(pid uint16, pes *PES) *int64 {
	var correctedPTS, correctedDTS *int64
	if pes.PTS != nil {
		c := d.ptsLane(pid).correct(*pes.PTS)
		correctedPTS = &c
	}
	if pes.DTS != nil {
		c := d.dtsLane(pid).correct(*pes.DTS)
		correctedDTS = &c
	}
	if correctedDTS != nil {
		return correctedDTS
	}
	return correctedPTS
}

// correctPSI computes a best-effort timestamp for a PSI container: a
// SCTE-35 splice_insert's own (rollover-corrected) splice time, or
// else the most recently observed video last_dts.
func (d *Demuxer) correctPSI(pid uint16, psi *PSISection) *int64 {
	if psi.SCTE35 != nil && psi.SCTE35.SpliceInsert != nil && psi.SCTE35.SpliceInsert.SpliceTime != nil {
		raw := psi.SCTE35.PTSAdjustment + psi.SCTE35.SpliceInsert.SpliceTime.PTS
		c := d.ptsLane(pid).correct(raw)
		return &c
	}
	if d.lastDTS != nil {
		v := *d.lastDTS
		return &v
	}
	return nil
}

func (d *Demuxer) ptsLane(pid uint16) *rolloverState {
	if d.ptsRollover == nil {
		d.ptsRollover = map[uint16]*rolloverState{}
	}
	s, ok := d.ptsRollover[pid]
	if !ok {
		s = &rolloverState{}
		d.ptsRollover[pid] = s
	}
	return s
}

func (d *Demuxer) dtsLane(pid uint16) *rolloverState {
	if d.dtsRollover == nil {
		d.dtsRollover = map[uint16]*rolloverState{}
	}
	s, ok := d.dtsRollover[pid]
	if !ok {
		s = &rolloverState{}
		d.dtsRollover[pid] = s
	}
	return s
}
