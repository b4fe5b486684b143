package usblink

// parseState is the uplink (receive) parser state machine of §4.5:
// IDLE -> FRAME_CODE -> FRAME_PARAMETER -> CODE_PACKET_CHECKSUM ->
// MESSAGE -> ESCAPED_DATA -> IDLE. ESCAPED_DATA returns to MESSAGE for
// each subsequent body byte; the frame closes once ExpectedLen raw bytes
// (sync through checksum inclusive) have been consumed, matching how a
// real transceiver always tells the driver the frame length up front
// (either fixed per profile or carried in the code-packet parameter).
type parseState uint8

const (
	stateIdle parseState = iota
	stateFrameCode
	stateFrameParameter
	stateCodePacketChecksum
	stateMessage
	stateEscapedData
)

// maxBytesPerIteration bounds how many ring-buffer bytes Parser.Feed
// drains in one call (§4.5: "≤128 bytes/iteration").
const maxBytesPerIteration = 128

// Parser is the streaming uplink frame assembler. It consumes raw bytes
// (as drained from the receive ring buffer) and emits complete frames
// via the Frames callback.
type Parser struct {
	Profile Profile
	// Frames is invoked once per fully-assembled, checksum-validated
	// frame. Set before calling Feed.
	Frames func(Frame)
	// FrameError is invoked for a frame that failed to validate;
	// optional.
	FrameError func(error)

	// ExpectedLen is the total raw frame length (sync..checksum) of the
	// frame currently being assembled, set by the caller before the sync
	// byte arrives. Interface.Pump sets it to the length of the chunk it
	// drains from the ring while the parser is idle.
	ExpectedLen int

	state parseState
	buf   []byte
}

// Feed drains up to maxBytesPerIteration bytes from b, advancing the
// state machine and returning the number of bytes actually consumed so
// the caller can re-invoke Feed on the remainder across iterations.
func (p *Parser) Feed(b []byte) int {
	n := len(b)
	if n > maxBytesPerIteration {
		n = maxBytesPerIteration
	}
	for i := 0; i < n; i++ {
		p.step(b[i])
	}
	return n
}

func (p *Parser) step(c byte) {
	switch p.state {
	case stateIdle:
		if c == Sync {
			p.buf = []byte{c}
			if p.Profile == ProfileU50 {
				p.state = stateFrameCode
			} else {
				p.state = stateMessage
			}
		}
	case stateFrameCode:
		p.buf = append(p.buf, c)
		p.state = stateFrameParameter
	case stateFrameParameter:
		p.buf = append(p.buf, c)
		p.state = stateCodePacketChecksum
	case stateCodePacketChecksum:
		p.buf = append(p.buf, c)
		p.state = stateMessage
	case stateMessage:
		p.buf = append(p.buf, c)
		if c == Escape {
			p.state = stateEscapedData
		}
		p.maybeFinish()
	case stateEscapedData:
		p.buf = append(p.buf, c)
		p.state = stateMessage
		p.maybeFinish()
	}
}

func (p *Parser) maybeFinish() {
	if p.ExpectedLen <= 0 || len(p.buf) < p.ExpectedLen {
		return
	}
	raw := p.buf
	p.buf = nil
	p.state = stateIdle
	f, err := DecodeFrame(p.Profile, raw)
	if err != nil {
		if p.FrameError != nil {
			p.FrameError(err)
		}
		return
	}
	if p.Frames != nil {
		p.Frames(f)
	}
}

// Reset discards any partially-assembled frame, used on NI_RESYNC
// (§4.5).
func (p *Parser) Reset() {
	p.buf = nil
	p.state = stateIdle
}

// Idle reports whether the parser is between frames, i.e. safe to assign
// a new ExpectedLen for the next one.
func (p *Parser) Idle() bool { return p.state == stateIdle }
