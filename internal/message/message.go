// Package message defines the unit of work carried through the ingest
// pipeline: a single decoded syslog record plus the routing metadata the
// ruleset dispatcher needs.
package message

import (
	"net/netip"
	"time"

	"github.com/imtcpd/imtcpd/internal/synparse"
)

// Ruleset is the minimal view of a ruleset that a Message needs to carry a
// binding to. The concrete type lives in package ruleset; this interface
// avoids an import cycle between message and ruleset.
type Ruleset interface {
	// Name returns the ruleset's registered name.
	Name() string
}

// Message is one syslog record travelling from a TCP session to the
// ruleset dispatcher.
type Message struct {
	// Raw is the undecoded payload bytes exactly as framed off the wire.
	Raw []byte

	// PeerAddr is the source peer's address.
	PeerAddr netip.Addr

	// InputName is the input tag of the listener instance that received
	// this message (e.g. "imtcp").
	InputName string

	// Ruleset is the ruleset this message is bound to. Nil means the
	// registry's default ruleset applies.
	Ruleset Ruleset

	// Seq is a monotonically increasing sequence number assigned by the
	// session that produced the message. Used only to assert per-
	// connection and per-ruleset ordering in tests; it carries no wire
	// meaning.
	Seq uint64

	// FlowControl marks the message as "light-delayable": the producer
	// may be throttled if the destination queue signals backpressure and
	// flow control is enabled for the listener.
	FlowControl bool

	// ReceivedAt is the time the session finished assembling the frame.
	ReceivedAt time.Time

	// Synthetic is true for informational messages the server manufactures
	// on connection close (emitMsgOnClose), not for peer-originated data.
	Synthetic bool

	// Parsed holds the result of the ruleset's parser chain, set by the
	// parse action. Nil until a parser successfully decodes Raw.
	Parsed *synparse.Parsed

	// ParserName records which parser produced Parsed, or the name of
	// the last parser that was tried if every candidate failed.
	ParserName string
}

// RulesetName returns the bound ruleset's name, or "" if the message
// carries no binding.
func (m *Message) RulesetName() string {
	if m.Ruleset == nil {
		return ""
	}
	return m.Ruleset.Name()
}
