// Package tcpsrv implements the per-connection framing session (C3) and
// the TCP server that owns listeners, the session table, and the
// accept/read loops (C4).
package tcpsrv

import (
	"net/netip"
)

// FramingMode selects how a Session recognizes frame boundaries.
type FramingMode int

const (
	// FramingAuto inspects the first non-space byte of the session to
	// decide between octet-counted and LF-delimited, then locks the
	// decision in for the rest of the session.
	FramingAuto FramingMode = iota
	FramingLF
	FramingOctetCounted
)

// State is the session's framing state machine position.
type State int

const (
	StateReadingFrameHeader State = iota
	StateReadingFrameBody
	StateReadingLFDelimited
	StateClosing
)

const maxOctetDigits = 9

// Session decodes a byte stream from one peer into discrete frames. It
// holds no network handle itself — the TCP server feeds it bytes read
// from the stream and receives emitted frames via callback.
type Session struct {
	PeerAddr netip.Addr

	configuredMode FramingMode
	resolved       bool
	effectiveMode  FramingMode

	state State

	digits  []byte
	frame   []byte
	expect  int

	addtlDelim   int // -1 means no additional delimiter byte configured
	disableLF    bool
	maxFrameSize int // 0 means no explicit cap beyond the 9-digit bound
}

// NewSession builds a Session. addtlDelim of -1 disables the additional
// delimiter byte. maxFrameSize of 0 applies no cap beyond the 9-digit
// length-header bound.
func NewSession(peer netip.Addr, mode FramingMode, addtlDelim int, disableLF bool, maxFrameSize int) *Session {
	s := &Session{
		PeerAddr:       peer,
		configuredMode: mode,
		addtlDelim:     addtlDelim,
		disableLF:      disableLF,
		maxFrameSize:   maxFrameSize,
		state:          StateReadingLFDelimited,
	}
	if mode != FramingAuto {
		s.resolved = true
		s.effectiveMode = mode
		if mode == FramingOctetCounted {
			s.state = StateReadingFrameHeader
		}
	}
	return s
}

// Feed processes data byte by byte, invoking emit once per completed
// frame. It returns ErrFramingOverflow or ErrMalformedOctetCount if the
// stream violates octet-counted framing rules; the caller must treat
// that as a fatal session error (onErrClose).
func (s *Session) Feed(data []byte, emit func(frame []byte)) error {
	for _, b := range data {
		if err := s.feedByte(b, emit); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) feedByte(b byte, emit func(frame []byte)) error {
	if !s.resolved {
		if b == ' ' {
			return nil
		}
		if isDigit(b) {
			s.effectiveMode = FramingOctetCounted
			s.state = StateReadingFrameHeader
		} else {
			s.effectiveMode = FramingLF
			s.state = StateReadingLFDelimited
		}
		s.resolved = true
	}

	if s.effectiveMode == FramingOctetCounted {
		return s.feedOctetCounted(b, emit)
	}
	return s.feedLFDelimited(b, emit)
}

func (s *Session) feedLFDelimited(b byte, emit func(frame []byte)) error {
	isLF := b == '\n' && !s.disableLF
	isAddtl := s.addtlDelim >= 0 && int(b) == s.addtlDelim

	if isLF || isAddtl {
		if len(s.frame) > 0 {
			emit(s.frame)
		}
		s.frame = nil
		return nil
	}

	s.frame = append(s.frame, b)
	return nil
}

func (s *Session) feedOctetCounted(b byte, emit func(frame []byte)) error {
	switch s.state {
	case StateReadingFrameHeader:
		if isDigit(b) {
			s.digits = append(s.digits, b)
			if len(s.digits) > maxOctetDigits {
				return ErrFramingOverflow
			}
			return nil
		}
		if b == ' ' {
			n := 0
			for _, d := range s.digits {
				n = n*10 + int(d-'0')
			}
			if s.maxFrameSize > 0 && n > s.maxFrameSize {
				return ErrFramingOverflow
			}
			s.expect = n
			s.digits = s.digits[:0]
			s.frame = make([]byte, 0, n)
			if n == 0 {
				emit(s.frame)
				s.state = StateReadingFrameHeader
				return nil
			}
			s.state = StateReadingFrameBody
			return nil
		}
		return ErrMalformedOctetCount

	case StateReadingFrameBody:
		s.frame = append(s.frame, b)
		s.expect--
		if s.expect == 0 {
			emit(s.frame)
			s.frame = nil
			s.state = StateReadingFrameHeader
		}
		return nil

	default:
		return nil
	}
}

// PrepareClose finalizes the session on a regular (EOF) close, draining a
// trailing partial frame when the framing rules allow it: an LF-mode
// frame without a trailing delimiter is flushed only if disableLF is
// false; an in-progress octet-counted frame is always discarded since
// its length cannot be inferred from a short read.
func (s *Session) PrepareClose(emit func(frame []byte)) {
	s.state = StateClosing
	if s.effectiveMode == FramingOctetCounted {
		s.frame = nil
		return
	}
	if len(s.frame) == 0 {
		return
	}
	if !s.disableLF {
		emit(s.frame)
	}
	s.frame = nil
}

// DropOnError discards any partial buffer unconditionally, per the
// error-close semantics (no draining, no emission).
func (s *Session) DropOnError() {
	s.state = StateClosing
	s.frame = nil
	s.digits = nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
