package izot

import "github.com/izot-community/lonstack/persist"

// The persistent segment operations (§4.1, §6) are implemented by
// persist.Store by default. A host application that wants to own the
// backing storage itself (rather than the flash-device model in
// persist/device.go) can register the matching Registrar callbacks,
// which take priority when present; SegmentOpenForRead/SegmentClose
// bracket a host-owned read the same way persist.Store.OpenForRead/
// ReadHandle.Close do internally.

// ReadSegment returns a committed segment's full payload.
func (ctx *StackContext) ReadSegment(seg persist.Segment) ([]byte, error) {
	if ctx.Callbacks.SegmentRead != nil {
		if ctx.Callbacks.SegmentOpenForRead != nil {
			if err := ctx.Callbacks.SegmentOpenForRead(seg); err != nil {
				return nil, err
			}
			defer func() {
				if ctx.Callbacks.SegmentClose != nil {
					ctx.Callbacks.SegmentClose(seg)
				}
			}()
		}
		buf := make([]byte, ctx.Store.GetMaxSize(seg))
		n, err := ctx.Callbacks.SegmentRead(seg, 0, buf)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
	return ctx.Store.ReadSegment(seg)
}

// WriteSegment stages seg's payload for commit via the guard-band
// scheduler, or hands it to the host's SegmentWrite callback — bracketed
// by SegmentEnterTransaction/SegmentExitTransaction when registered — if
// one is present.
func (ctx *StackContext) WriteSegment(seg persist.Segment, payload []byte) error {
	if ctx.Callbacks.SegmentWrite != nil {
		if ctx.Callbacks.SegmentEnterTransaction != nil {
			if err := ctx.Callbacks.SegmentEnterTransaction(seg); err != nil {
				return err
			}
		}
		if err := ctx.Callbacks.SegmentWrite(seg, 0, payload); err != nil {
			return err
		}
		if ctx.Callbacks.SegmentExitTransaction != nil {
			return ctx.Callbacks.SegmentExitTransaction(seg)
		}
		return nil
	}
	ctx.Scheduler.MarkDirty(seg, payload)
	return nil
}

// IsInTransaction reports whether seg's durable state would be discarded
// on reboot (§4.1).
func (ctx *StackContext) IsInTransaction(seg persist.Segment) (bool, error) {
	if ctx.Callbacks.SegmentIsInTransaction != nil {
		return ctx.Callbacks.SegmentIsInTransaction(seg)
	}
	return ctx.Store.IsInTransaction(seg)
}

// FlushSegments commits every segment with a pending write immediately,
// bypassing the guard-band timer (used before a planned reboot). A
// host-owned backing store commits synchronously inside WriteSegment, so
// there is nothing queued here to flush.
func (ctx *StackContext) FlushSegments() []error {
	if ctx.Callbacks.SegmentWrite != nil {
		return nil
	}
	return ctx.Scheduler.Flush()
}
