package tscore

// DemuxerOpt configures a Demuxer at construction time.
type DemuxerOpt func(*Demuxer)

// DemuxerOptStrict puts the Demuxer in strict mode (§7): any decode or
// aggregator error is fatal and returned to the caller. In lenient mode,
// decode errors are reported through the Observer instead, and aggregator
// errors reset that aggregator without being reported.
func DemuxerOptStrict() DemuxerOpt {
	return func(d *Demuxer) { d.strict = true }
}

// DemuxerOptObserver registers the callback that receives lenient-mode
// warnings.
func DemuxerOptObserver(o Observer) DemuxerOpt {
	return func(d *Demuxer) { d.observer = o }
}

// DemuxerOptWaitRAI makes every aggregator the Demuxer creates start in
// the waiting_rai state (§4.8), discarding packets until the first
// random_access_indicator is seen.
func DemuxerOptWaitRAI() DemuxerOpt {
	return func(d *Demuxer) { d.waitRAI = true }
}

// MuxerOpt configures a Muxer at construction time.
type MuxerOpt func(*Muxer)

// MuxerOptPMTStartPID overrides the default PMT PID (0x1000).
func MuxerOptPMTStartPID(pid uint16) MuxerOpt {
	return func(m *Muxer) { m.pmtPID = pid }
}

// MuxerOptStartPID overrides the default first elementary-stream PID
// (0x0100).
func MuxerOptStartPID(pid uint16) MuxerOpt {
	return func(m *Muxer) { m.nextPID = pid }
}
