// Package message implements the tagged-union message algebra shared by all
// four elector variants (§4.1), with a JSON wire form self-describing
// enough to round-trip through a discriminator field, per §6.1.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
)

// Tag identifies a message's kind on the wire.
type Tag string

const (
	TagStart Tag = "Start"
	TagOk    Tag = "Ok"
	TagStop  Tag = "Stop"
	TagAlert Tag = "Alert"
	TagAck   Tag = "Ack"
	TagHello Tag = "Hello"
	TagBye   Tag = "Bye"
)

// PeersField carries Ok.peers: either the full membership sequence (leader
// table dirty) or a bare peer count (unchanged), per §4.1's description of
// the Ok message. Exactly one of Peers/Count is meaningful; Full reports
// which.
type PeersField struct {
	Full  bool
	Peers []address.Address
	Count int
}

// FullList builds a PeersField carrying the entire membership sequence.
func FullList(peers []address.Address) PeersField {
	return PeersField{Full: true, Peers: peers}
}

// JustCount builds a PeersField carrying only the scalar cardinality.
func JustCount(n int) PeersField {
	return PeersField{Full: false, Count: n}
}

func (p PeersField) MarshalJSON() ([]byte, error) {
	if p.Full {
		return json.Marshal(p.Peers)
	}
	return json.Marshal(p.Count)
}

func (p *PeersField) UnmarshalJSON(data []byte) error {
	var asList []address.Address
	if err := json.Unmarshal(data, &asList); err == nil {
		p.Full = true
		p.Peers = asList
		return nil
	}
	var asCount int
	if err := json.Unmarshal(data, &asCount); err != nil {
		return fmt.Errorf("message: Ok.peers is neither a peer list nor a count: %w", err)
	}
	p.Full = false
	p.Count = asCount
	return nil
}

// Start is sent by any process to the designated leader of round k (basic,
// stable) or broadcast to all peers (lossy variants, which stamp it with a
// send timestamp to let the recipient's expiring-links estimator work).
type Start struct {
	Round     int     `json:"round"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// SendTime implements estimator.Timestamped so the lossy variants can judge
// a Start message's freshness.
func (m Start) SendTime() float64 { return m.Timestamp }

// Ok is the leader's heart-beat, broadcast every d. Stable variants attach
// either the full peer list or just its length; lossy variants additionally
// attach the leader's own timestamp and its per-recipient clock-offset/delay
// estimate.
type Ok struct {
	Round     int        `json:"round"`
	Peers     PeersField `json:"peers"`
	Timestamp float64    `json:"timestamp,omitempty"`
	Offset    float64    `json:"O,omitempty"`
	Delay     float64    `json:"D,omitempty"`
}

// SendTime implements estimator.Timestamped so the lossy variants can judge
// an Ok message's freshness.
func (m Ok) SendTime() float64 { return m.Timestamp }

// Stop is sent by a follower to the believed leader of the round it just
// timed out on, in the stable reliable variant only.
type Stop struct {
	Round int `json:"round"`
}

// Alert is broadcast by the process initiating a new round in the O(1)
// variant, so every peer's last-alert record can suppress confirmation of a
// deposed leader's stale Ok (§4.5).
type Alert struct {
	Timestamp float64 `json:"timestamp"`
	Round     int     `json:"round"`
}

// Ack is the lossy variants' round-trip reply to an Ok, carrying the three
// timestamps needed to estimate clock offset and one-way delay (§4.6).
type Ack struct {
	Timestamp float64 `json:"timestamp"`
	MsgTS     float64 `json:"msg_ts"`
	MsgRcvTS  float64 `json:"msg_rcv_ts"`
	Round     int     `json:"round"`
}

// Hello announces a new peer's address, either sent directly by that peer
// or forwarded on its behalf towards the believed leader.
type Hello struct {
	Address address.Address `json:"address"`
}

// Bye is Hello's symmetric counterpart, announcing a peer's departure.
type Bye struct {
	Address address.Address `json:"address"`
}

// Envelope is the on-the-wire container: a discriminator Tag plus a
// payload. Decoding an Envelope is a two-pass operation (read the tag, then
// decode the payload against the matching Go type) which is what makes the
// wire form self-describing per §6.1.
type Envelope struct {
	Tag     Tag             `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps a concrete message value into its wire Envelope.
func Encode(tag Tag, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("message: encoding %s payload: %w", tag, err)
	}
	return json.Marshal(Envelope{Tag: tag, Payload: raw})
}

// Decode reads the discriminator tag out of a wire datagram without yet
// decoding the payload, so the caller's dispatch table can pick the right
// concrete type.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("message: malformed envelope: %w", err)
	}
	if env.Tag == "" {
		return Envelope{}, fmt.Errorf("message: missing tag discriminator")
	}
	return env, nil
}

// DecodeStart, DecodeOk, ... decode an Envelope's payload into the concrete
// type matching its tag. Each returns an error on a malformed/missing
// field, which handlers are expected to log and drop per §7.

func (e Envelope) DecodeStart() (Start, error) {
	var m Start
	err := json.Unmarshal(e.Payload, &m)
	return m, wrapDecodeErr(TagStart, err)
}

func (e Envelope) DecodeOk() (Ok, error) {
	var m Ok
	err := json.Unmarshal(e.Payload, &m)
	return m, wrapDecodeErr(TagOk, err)
}

func (e Envelope) DecodeStop() (Stop, error) {
	var m Stop
	err := json.Unmarshal(e.Payload, &m)
	return m, wrapDecodeErr(TagStop, err)
}

func (e Envelope) DecodeAlert() (Alert, error) {
	var m Alert
	err := json.Unmarshal(e.Payload, &m)
	return m, wrapDecodeErr(TagAlert, err)
}

func (e Envelope) DecodeAck() (Ack, error) {
	var m Ack
	err := json.Unmarshal(e.Payload, &m)
	return m, wrapDecodeErr(TagAck, err)
}

func (e Envelope) DecodeHello() (Hello, error) {
	var m Hello
	err := json.Unmarshal(e.Payload, &m)
	return m, wrapDecodeErr(TagHello, err)
}

func (e Envelope) DecodeBye() (Bye, error) {
	var m Bye
	err := json.Unmarshal(e.Payload, &m)
	return m, wrapDecodeErr(TagBye, err)
}

func wrapDecodeErr(tag Tag, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("message: decoding %s payload: %w", tag, err)
}
