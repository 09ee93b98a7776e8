package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// rulesetView mirrors server.RulesetView; kept as a local type so this
// package does not import internal/server's http.Handler dependencies.
type rulesetView struct {
	Name               string   `json:"name"`
	RuleCount          int      `json:"rule_count"`
	Parsers            []string `json:"parsers"`
	UsesDefaultParsers bool     `json:"uses_default_parsers"`
	QueueDepth         int      `json:"queue_depth,omitempty"`
	QueueDroppedOnShut uint64   `json:"queue_dropped_on_shutdown,omitempty"`
}

type rulesetListResponse struct {
	Rulesets []rulesetView `json:"rulesets"`
}

type sessionSummaryResponse struct {
	ActiveSessions int `json:"active_sessions"`
}

// formatRulesets renders the ruleset list in the requested format.
func formatRulesets(rulesets []rulesetView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatRulesetsJSON(rulesets)
	case formatTable:
		return formatRulesetsTable(rulesets), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatRulesetsJSON(rulesets []rulesetView) (string, error) {
	b, err := json.MarshalIndent(rulesets, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal rulesets: %w", err)
	}
	return string(b) + "\n", nil
}

func formatRulesetsTable(rulesets []rulesetView) string {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tRULES\tPARSERS\tQUEUE DEPTH\tDROPPED ON SHUTDOWN")
	for _, rs := range rulesets {
		parsers := strings.Join(rs.Parsers, ",")
		if rs.UsesDefaultParsers {
			parsers = "(default)"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\n", rs.Name, rs.RuleCount, parsers, rs.QueueDepth, rs.QueueDroppedOnShut)
	}
	tw.Flush()
	return sb.String()
}

// formatSessionSummary renders the session summary in the requested format.
func formatSessionSummary(summary sessionSummaryResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		b, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal session summary: %w", err)
		}
		return string(b) + "\n", nil
	case formatTable:
		return fmt.Sprintf("ACTIVE SESSIONS\n%d\n", summary.ActiveSessions), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}
