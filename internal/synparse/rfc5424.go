package synparse

import (
	"strconv"
	"strings"
	"time"
)

// RFC5424Parser decodes the structured syslog format of RFC 5424:
// "<PRI>VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID SD MSG".
type RFC5424Parser struct{}

// NewRFC5424Parser builds an RFC5424Parser.
func NewRFC5424Parser() *RFC5424Parser { return &RFC5424Parser{} }

func (p *RFC5424Parser) Name() string { return "rfc5424" }

func (p *RFC5424Parser) Parse(raw []byte, now time.Time) (Parsed, error) {
	s := string(raw)
	if len(s) < 2 || s[0] != '<' {
		return Parsed{}, ErrMalformed
	}

	close := strings.IndexByte(s, '>')
	if close < 1 {
		return Parsed{}, ErrMalformed
	}
	pri, err := strconv.Atoi(s[1:close])
	if err != nil || pri < 0 || pri > 191 {
		return Parsed{}, ErrMalformed
	}

	rest := s[close+1:]
	// Skip the version token ("1 ").
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return Parsed{}, ErrMalformed
	}
	rest = rest[sp+1:]

	fields := strings.SplitN(rest, " ", 5)
	if len(fields) < 5 {
		return Parsed{}, ErrMalformed
	}
	timestampField, hostname, appName := fields[0], fields[1], fields[2]

	ts := now
	if timestampField != "-" {
		if parsed, err := time.Parse(time.RFC3339Nano, timestampField); err == nil {
			ts = parsed
		}
	}

	// fields[3] is PROCID, fields[4] is "MSGID STRUCTURED-DATA MSG...".
	// Only MSGID is stripped: Content is "STRUCTURED-DATA MSG..." with the
	// structured data left unparsed at its front.
	remainder := fields[4]
	content := remainder
	if sdStart := strings.IndexByte(remainder, ' '); sdStart >= 0 {
		content = remainder[sdStart+1:]
	}

	return Parsed{
		Facility:  pri / 8,
		Severity:  pri % 8,
		Priority:  pri,
		Timestamp: ts,
		Hostname:  hostname,
		Tag:       appName,
		Content:   content,
	}, nil
}
