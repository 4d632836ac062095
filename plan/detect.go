package plan

import (
	"fmt"
	"regexp"
	"strconv"
)

// AnomalyKind classifies a detected deviation from single-step execution.
type AnomalyKind int

const (
	// AnomalySkipAhead means the model announced work on a step other than
	// the one currently in progress.
	AnomalySkipAhead AnomalyKind = iota
	// AnomalyLoop means the model kept invoking the same tool repeatedly.
	AnomalyLoop
)

func (k AnomalyKind) String() string {
	switch k {
	case AnomalySkipAhead:
		return "skip_ahead"
	case AnomalyLoop:
		return "loop"
	default:
		return "unknown"
	}
}

// Anomaly is a transient detection result. Only its count persists on the
// tracker; the value itself is never stored.
type Anomaly struct {
	Kind    AnomalyKind
	Message string
}

// DefaultLoopWindow is how many identical trailing tool-call names count as
// a loop.
const DefaultLoopWindow = 6

// DefaultSkipAheadPatterns match English execution-intent phrasing that names
// a step number. The step number must be the first capture group. These are
// empirically tuned heuristics, not semantic invariants; callers with other
// locales or prompt styles should supply their own set.
var DefaultSkipAheadPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:moving|move|jump|skip)(?:ing)?\s+(?:on\s+)?(?:ahead\s+)?to\s+step\s+(\d+)`),
	regexp.MustCompile(`(?i)(?:start|begin|execut|implement|work)\w*\s+(?:on\s+|with\s+)?step\s+(\d+)`),
	regexp.MustCompile(`(?i)(?:now|next)[,]?\s+(?:do(?:ing)?\s+|for\s+|on\s+to\s+)?step\s+(\d+)`),
	regexp.MustCompile(`(?i)let'?s\s+(?:do|tackle|handle)\s+step\s+(\d+)`),
	regexp.MustCompile(`(?i)proceed(?:ing)?\s+(?:to|with)\s+step\s+(\d+)`),
}

// detectSkipAhead scans text for an execution-intent reference to a step id
// other than currentID. Pure function, no state. Returns the offending step
// id, or 0 when nothing matched.
func detectSkipAhead(text string, currentID int, patterns []*regexp.Regexp) int {
	if currentID == 0 || text == "" {
		return 0
	}
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			id, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if id != currentID {
				return id
			}
		}
	}
	return 0
}

// detectLoop reports the repeated tool name when the last window entries of
// the call history are all identical. Fewer than window entries never trigger.
func detectLoop(history []string, window int) string {
	if window <= 0 || len(history) < window {
		return ""
	}
	tail := history[len(history)-window:]
	name := tail[0]
	for _, n := range tail[1:] {
		if n != name {
			return ""
		}
	}
	return name
}

// detect runs both heuristics over one LLM turn. Pure: callers own any state
// updates (counters, windows).
func detect(text string, history []string, currentID, window int, patterns []*regexp.Regexp) *Anomaly {
	if target := detectSkipAhead(text, currentID, patterns); target != 0 {
		return &Anomaly{
			Kind:    AnomalySkipAhead,
			Message: fmt.Sprintf("model is attempting step %d while step %d is in progress", target, currentID),
		}
	}
	if name := detectLoop(history, window); name != "" {
		return &Anomaly{
			Kind:    AnomalyLoop,
			Message: fmt.Sprintf("model called tool %q %d times in a row", name, window),
		}
	}
	return nil
}
