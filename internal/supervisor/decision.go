package supervisor

import "strings"

// Decision is the operator's verdict on what happens after the server exits.
type Decision int

const (
	// DecisionRestart runs another supervisor cycle. It is the zero value
	// because restarting is the default on timeouts and closed input.
	DecisionRestart Decision = iota
	// DecisionStop ends the supervisor loop.
	DecisionStop
)

// String returns a human-readable form for logs.
func (d Decision) String() string {
	switch d {
	case DecisionRestart:
		return "restart"
	case DecisionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ParseDecision maps one line of operator input to a decision.
// Only "r" (restart) and "s" (stop) are accepted, case-insensitively and
// ignoring surrounding whitespace; everything else, including an empty
// line, reports false so the caller can ask again.
func ParseDecision(line string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r":
		return DecisionRestart, true
	case "s":
		return DecisionStop, true
	default:
		return DecisionRestart, false
	}
}
