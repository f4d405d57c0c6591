// Package address defines the peer transport address used throughout the
// election module and the total order the membership table is sorted by.
package address

import (
	"encoding/json"
	"fmt"
)

// Address is an opaque transport identifier (host, port). It is comparable
// and therefore safe to use as a map key or in equality checks, which the
// membership table and the expiring-links estimator both rely on.
type Address struct {
	Host string
	Port int
}

// New builds an Address from a host and port.
func New(host string, port int) Address {
	return Address{Host: host, Port: port}
}

// String renders "host:port", matching net.JoinHostPort's informal shape
// closely enough for logging without pulling in the net package here.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Less implements the total order peers are sorted by: host first, then
// port. All correct processes must compute the same index for the same
// address, so the ordering must be total and deterministic — lexical
// comparison on host, broken by numeric port, satisfies that.
func (a Address) Less(other Address) bool {
	if a.Host != other.Host {
		return a.Host < other.Host
	}
	return a.Port < other.Port
}

// MarshalJSON encodes the address as the canonical [host, port] sequence,
// per §6.1. A bare struct would marshal as a JSON object with named fields;
// encoding as a two-element array keeps wire compatibility with the
// tagged-union message algebra.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{a.Host, a.Port})
}

// UnmarshalJSON decodes a [host, port] sequence (a JSON array, never a JSON
// object) into an Address, normalizing the port to an int regardless of
// whether the decoder produced a float64 or a json.Number for it. This is
// the fix for the "JSON list vs tuple ambiguity" bug noted in §9: addresses
// must be normalized to a canonical value before any set/list membership
// check, never compared as raw decoded values.
func (a *Address) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("address: expected [host, port] tuple: %w", err)
	}
	var host string
	if err := json.Unmarshal(tuple[0], &host); err != nil {
		return fmt.Errorf("address: decoding host: %w", err)
	}
	var port float64
	if err := json.Unmarshal(tuple[1], &port); err != nil {
		return fmt.Errorf("address: decoding port: %w", err)
	}
	a.Host = host
	a.Port = int(port)
	return nil
}
