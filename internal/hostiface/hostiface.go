// Package hostiface declares the narrow interfaces the three engines
// expect their hosting deterministic execution environment to provide:
// bank balance queries and transfers, block context, and event
// emission. Message dispatch, transactional storage commit/rollback,
// address validation, and sub-message scheduling are the host's job and
// are deliberately not modeled here — the engines only need the slices
// of host behavior their algorithms read or cause side effects through.
package hostiface

import (
	"math/big"

	"poe-core/internal/poetypes"
)

// BlockInfo is the subset of block context the engines are sensitive
// to: wall-clock time for expirations/halflife/epoch, and height for
// the snapshot map's point-in-time reads.
type BlockInfo struct {
	Height uint64
	Time   int64 // unix seconds
}

// Bank is the host's token ledger, as seen by the engines. Engines
// never move funds directly — every transfer is emitted as a Msg (see
// Response.Messages) for the host to apply after the transaction
// commits — but DistributeRewards needs to read the current balance to
// compute the undistributed amount.
type Bank interface {
	Balance(addr poetypes.Address, denom string) (*big.Int, error)
}

// MsgKind identifies the shape of a host-dispatched message emitted by
// an engine in a Response.
type MsgKind string

const (
	MsgBankSend   MsgKind = "bank_send"
	MsgBankBurn   MsgKind = "bank_burn"
	MsgDelegate   MsgKind = "delegate"
	MsgUndelegate MsgKind = "undelegate"
	MsgHook       MsgKind = "hook"
	MsgDistribute MsgKind = "distribute_rewards"
)

// Msg is a host-dispatched side effect emitted by an operation. The
// host applies these, in emission order, only after the engine's
// transaction commits (see spec §5 ordering guarantees).
type Msg struct {
	Kind      MsgKind          `json:"kind"`
	To        poetypes.Address `json:"to,omitempty"`
	Contract  poetypes.Address `json:"contract,omitempty"`
	Amount    *big.Int         `json:"amount,omitempty"`
	Denom     string           `json:"denom,omitempty"`
	Payload   any              `json:"payload,omitempty"`
}

// Event is one attribute-bearing event appended to a Response, matching
// spec §6's "action attribute plus the operation's principal
// parameters" convention.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Response is the result of a successful Execute/Sudo operation: the
// events to append and the messages for the host to dispatch.
type Response struct {
	Events   []Event `json:"events"`
	Messages []Msg   `json:"messages"`
}

// NewResponse returns a Response carrying a single action event.
func NewResponse(action string, attrs map[string]string) *Response {
	return &Response{Events: []Event{{Type: "action", Attributes: mergeAction(action, attrs)}}}
}

func mergeAction(action string, attrs map[string]string) map[string]string {
	out := map[string]string{"action": action}
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// AddMessage appends a host message to the response and returns the
// response for chaining.
func (r *Response) AddMessage(m Msg) *Response {
	r.Messages = append(r.Messages, m)
	return r
}

// AddEvent appends an event to the response and returns it for chaining.
func (r *Response) AddEvent(e Event) *Response {
	r.Events = append(r.Events, e)
	return r
}
