// Package transport provides the thin mapping between the message algebra
// and UDP datagrams described in §6.1. The election core only depends on
// its contract; this package supplies a working implementation plus an
// in-memory fake for deterministic tests of the election core.
package transport

import "github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"

// Datagram is one received message: its raw bytes and the address it came
// from, already normalized (§6.1: "addresses ... must be normalized ...
// before being compared against the membership table").
type Datagram struct {
	Data []byte
	Src  address.Address
}

// Transport is the contract the election core depends on. A send is
// non-blocking and best-effort: it returns the number of bytes NOT sent
// (0 on full success) alongside any hard error, mirroring §6.1's "the
// transport reports partial success by returning the count of bytes not
// sent".
type Transport interface {
	// LocalAddr is this process' own address, used to compute its index p
	// in the membership table.
	LocalAddr() address.Address

	// Send transmits data to dst. missing is the number of bytes that did
	// not make it out; callers treat any non-zero missing as a failed send
	// even when err is nil.
	Send(data []byte, dst address.Address) (missing int, err error)

	// Recv blocks until a datagram arrives or the transport is closed, in
	// which case it returns ErrClosed.
	Recv() (Datagram, error)

	// Close releases the underlying socket. Recv must unblock and return
	// ErrClosed after Close is called.
	Close() error
}

// ErrClosed is returned by Recv once the transport has been closed.
var ErrClosed = errClosed{}

type errClosed struct{}

func (errClosed) Error() string { return "transport: closed" }
