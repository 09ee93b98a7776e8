package rule

import (
	"context"
	"errors"

	"github.com/imtcpd/imtcpd/internal/message"
	"github.com/imtcpd/imtcpd/internal/synparse"
)

// ErrNoParserMatched is returned by a parse action when every candidate
// parser rejected the message's raw payload.
var ErrNoParserMatched = errors.New("rule: no parser matched message")

// ParseErrorReporter receives the name of a parser that failed to decode
// a message. Wired to a metrics collector's parser-error counter; may be
// nil.
type ParseErrorReporter func(parserName string)

// NewParseAction builds an Action that tries each named parser against
// msg.Raw, in order, using registry to resolve parser names. The first
// parser that decodes without error wins; its result is stored on the
// message. onError, if non-nil, is invoked once per failed attempt.
func NewParseAction(names []string, registry *synparse.Registry, onError ParseErrorReporter) *FuncAction {
	return NewFuncAction("parse", func(ctx context.Context, msg *message.Message) error {
		for _, name := range names {
			p, err := registry.Lookup(name)
			if err != nil {
				if onError != nil {
					onError(name)
				}
				continue
			}

			parsed, err := p.Parse(msg.Raw, msg.ReceivedAt)
			if err != nil {
				if onError != nil {
					onError(name)
				}
				continue
			}

			msg.Parsed = &parsed
			msg.ParserName = name
			return nil
		}
		return ErrNoParserMatched
	})
}
