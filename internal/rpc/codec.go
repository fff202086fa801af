// Package rpc implements the newline-delimited JSON over TCP protocol used
// between services, the circuit breaker guarding outbound calls, and the
// health monitor that periodically probes downstream services.
package rpc

import "encoding/json"

// Request is one frame sent by a client. Pattern selects the handler on the
// serving side (e.g. "auth.validate_token"); Id correlates the response.
type Request struct {
	Id      string          `json:"id"`
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is the frame written back for a request. Err is set only for
// transport-level failures (undecodable frame, unknown pattern, handler
// error); application-level failures travel inside Data.
type Response struct {
	Id   string          `json:"id"`
	Err  string          `json:"err,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}
