// Package sync implements the cross-context synchronization coordinator that
// keeps a control process and a receiver (projector) process in agreement
// about shared visual/audio state. Messages travel as JSON envelopes over
// three independent best-effort transports; there are no delivery guarantees
// and no acknowledgements, so correctness rests on periodic re-transmission
// and idempotent application.
package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is embedded in every envelope. Envelopes carrying a
// different version are dropped, so an incompatible future protocol can
// coexist on the same channels without cross-talk.
const ProtocolVersion = 1

// Role identifies which side of the link a process plays.
type Role string

const (
	// RoleControl owns the authoritative parameter state and user input.
	RoleControl Role = "control"
	// RoleReceiver mirrors control's state for projection.
	RoleReceiver Role = "receiver"
	// RoleSolo runs self-contained: no traffic is sent and no peer is expected.
	RoleSolo Role = "solo"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleControl, RoleReceiver, RoleSolo:
		return true
	}
	return false
}

// TargetAny addresses an envelope to whichever role receives it.
const TargetAny = "any"

// MsgType identifies the kind of envelope payload.
type MsgType string

const (
	MsgHello           MsgType = "hello"
	MsgHeartbeat       MsgType = "heartbeat"
	MsgRequestSnapshot MsgType = "requestSnapshot"
	MsgParamsSnapshot  MsgType = "paramsSnapshot"
	MsgFeatures        MsgType = "features"
	MsgCommand         MsgType = "command"
	MsgPadEvent        MsgType = "padEvent"
)

// Envelope is the common wrapper for every message exchanged between roles.
// All three transports carry the same JSON shape.
type Envelope struct {
	Version  int             `json:"version"`
	Type     MsgType         `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Target   string          `json:"target"` // "control", "receiver", or "any"
	SenderID string          `json:"senderId"`
	SentAt   int64           `json:"sentAt"` // epoch milliseconds
	Nonce    string          `json:"nonce,omitempty"`
}

// HelloPayload announces a peer. DirectAddr, when set, is the WebSocket
// address the direct transport can dial to reach the sender.
type HelloPayload struct {
	Role       Role   `json:"role"`
	DirectAddr string `json:"directAddr,omitempty"`
}

// HeartbeatPayload is the periodic liveness signal.
type HeartbeatPayload struct {
	Role Role `json:"role"`
}

// CommandPayload names a one-shot receiver-side action. Unrecognized names
// are silent no-ops on the receiving end.
type CommandPayload struct {
	Name string `json:"name"`
}

// PadEventPayload carries a performance-pad event. The coordinator forwards
// these verbatim; pad semantics live entirely in the pad subsystem.
type PadEventPayload struct {
	Key    string `json:"key"`
	Action string `json:"action"` // "engage", "release", or "shot"
	T      int64  `json:"t"`      // epoch milliseconds at the sender
}

// NewIdentity returns a fresh peer identity: unique per process
// instantiation, never persisted. The timestamp suffix makes identities
// readable in logs and guarantees a reloaded peer is seen as a new one.
func NewIdentity() string {
	return fmt.Sprintf("%s-%d", uuid.NewString(), time.Now().UnixMilli())
}

// NewEnvelope wraps payload for transmission. The payload must be
// JSON-marshalable; a marshal failure returns the zero envelope and an error
// so callers can drop the message rather than send garbage.
func NewEnvelope(t MsgType, payload any, target string, senderID string, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Version:  ProtocolVersion,
		Type:     t,
		Payload:  raw,
		Target:   target,
		SenderID: senderID,
		SentAt:   now.UnixMilli(),
		Nonce:    uuid.NewString()[:8],
	}, nil
}

var (
	errBadEnvelope = errors.New("malformed envelope")
	errBadVersion  = errors.New("envelope version mismatch")
)

// DecodeEnvelope parses a raw transport payload. Anything that is not a JSON
// object with a non-empty type and the current protocol version is rejected;
// any same-origin context can write to the shared channels, so inbound data
// is never trusted to be well-formed.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, errBadEnvelope
	}
	if env.Type == "" || env.SenderID == "" {
		return Envelope{}, errBadEnvelope
	}
	if env.Version != ProtocolVersion {
		return Envelope{}, errBadVersion
	}
	return env, nil
}

// AcceptedBy reports whether a process with the given role and identity
// should process env: self-originated envelopes and envelopes targeted at
// another role are filtered out. This runs before any handler dispatch.
func (e Envelope) AcceptedBy(role Role, localID string) bool {
	if e.SenderID == localID {
		return false
	}
	return e.Target == TargetAny || e.Target == string(role)
}

// Encode serializes the envelope for a transport. Encoding a valid envelope
// cannot fail; the error return exists for symmetry with DecodeEnvelope.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
