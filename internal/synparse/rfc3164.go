package synparse

import (
	"strconv"
	"strings"
	"time"
)

// RFC3164Parser decodes the legacy BSD syslog format:
// "<PRI>Mon  2 15:04:05 HOSTNAME TAG: MSG". The timestamp carries no year
// or timezone; Parse fills both in from the now argument.
type RFC3164Parser struct{}

// NewRFC3164Parser builds an RFC3164Parser.
func NewRFC3164Parser() *RFC3164Parser { return &RFC3164Parser{} }

func (p *RFC3164Parser) Name() string { return "rfc3164" }

const rfc3164TimestampLen = 15 // "Jan  2 15:04:05"

func (p *RFC3164Parser) Parse(raw []byte, now time.Time) (Parsed, error) {
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
	ts := now
	if len(rest) > rfc3164TimestampLen {
		if parsed, err := time.Parse("Jan _2 15:04:05", rest[:rfc3164TimestampLen]); err == nil {
			ts = time.Date(now.Year(), parsed.Month(), parsed.Day(),
				parsed.Hour(), parsed.Minute(), parsed.Second(), 0, now.Location())
			rest = rest[rfc3164TimestampLen:]
		}
	}
	rest = strings.TrimPrefix(rest, " ")

	hostname := rest
	content := ""
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		hostname = rest[:sp]
		content = rest[sp+1:]
	}

	tag := ""
	if colon := strings.IndexByte(content, ':'); colon >= 0 && colon < 32 {
		tag = content[:colon]
		content = strings.TrimPrefix(content[colon+1:], " ")
	}

	return Parsed{
		Facility:  pri / 8,
		Severity:  pri % 8,
		Priority:  pri,
		Timestamp: ts,
		Hostname:  hostname,
		Tag:       tag,
		Content:   content,
	}, nil
}
