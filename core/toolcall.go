package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Volatility classifies how long a tool result stays representative of the
// backing service's state, and therefore how long it may be cached.
type Volatility int

const (
	// VolatilityNone marks results that must never be cached (mutations,
	// live playback state).
	VolatilityNone Volatility = iota
	// VolatilityShort marks fast-moving results (library searches, queues).
	VolatilityShort
	// VolatilityMedium marks slow-moving results (catalog metadata).
	VolatilityMedium
)

// String returns the configuration spelling of the volatility class.
func (v Volatility) String() string {
	switch v {
	case VolatilityShort:
		return "short"
	case VolatilityMedium:
		return "medium"
	default:
		return "none"
	}
}

// ParseVolatility maps a configuration string to a Volatility class.
func ParseVolatility(s string) (Volatility, error) {
	switch s {
	case "none", "":
		return VolatilityNone, nil
	case "short":
		return VolatilityShort, nil
	case "medium":
		return VolatilityMedium, nil
	default:
		return VolatilityNone, fmt.Errorf("unknown volatility class %q", s)
	}
}

// ToolCall is one requested tool invocation, carrying the declaration
// attributes the dispatcher needs (family routing, write classification,
// cacheability) alongside the raw arguments.
type ToolCall struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Family     string          `json:"family"`
	Args       json.RawMessage `json:"args,omitempty"`
	IsWrite    bool            `json:"is_write"`
	Volatility Volatility      `json:"volatility"`
}

// ToolResult is the terminal outcome of one ToolCall. Exactly one of Payload
// or Err is meaningful; sibling calls in a batch are never affected by an
// error result.
type ToolResult struct {
	Call     ToolCall      `json:"call"`
	Payload  any           `json:"payload,omitempty"`
	Err      error         `json:"-"`
	Latency  time.Duration `json:"latency"`
	CacheHit bool          `json:"cache_hit"`
}

// OK reports whether the call produced a payload rather than an error.
func (r ToolResult) OK() bool { return r.Err == nil }

// Response converts the result into a FunctionResponse for folding back into
// conversation context.
func (r ToolResult) Response() FunctionResponse {
	fr := FunctionResponse{ID: r.Call.ID, Name: r.Call.Name, Response: r.Payload}
	if r.Err != nil {
		fr.Error = r.Err.Error()
	}
	return fr
}
