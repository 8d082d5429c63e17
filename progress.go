package vault

// ProgressEvent is a single unit of user-facing progress, matching the
// {status, percentage} shape the host UI expects on its event channel.
type ProgressEvent struct {
	Status     string
	Percentage uint8
}

// ProgressEmitter pushes ProgressEvents to a channel, coalescing so that
// at most one event per percentage point (or per boundary, for shredding)
// reaches the channel. Sends are best-effort: a full channel drops the
// event rather than blocking the operation that is trying to report it.
type ProgressEmitter struct {
	ch           chan<- ProgressEvent
	lastPercent  int
	boundary     uint8
	everEmitted  bool
}

// NewProgressEmitter wraps ch, a channel the caller owns and drains.
// boundary controls how coarse emission is: 1 emits on every percentage
// point, 5 matches the shredder's coarser cadence.
func NewProgressEmitter(ch chan<- ProgressEvent, boundary uint8) *ProgressEmitter {
	if boundary == 0 {
		boundary = 1
	}
	return &ProgressEmitter{ch: ch, boundary: boundary, lastPercent: -1}
}

// Report computes a percentage from processed/total and emits it if it has
// advanced by at least one boundary step since the last emission. Emission
// is a non-blocking channel send: if the channel has no free buffer slot,
// the event is silently dropped, per spec.md §5's backpressure policy.
func (p *ProgressEmitter) Report(status string, processed, total int64) {
	var percent int
	if total > 0 {
		percent = int(processed * 100 / total)
	}
	if percent > 100 {
		percent = 100
	}

	if p.everEmitted && percent < p.lastPercent+int(p.boundary) && percent != 100 {
		return
	}
	p.lastPercent = percent
	p.everEmitted = true

	select {
	case p.ch <- ProgressEvent{Status: status, Percentage: uint8(percent)}:
	default:
	}
}
