package transport

import (
	"fmt"
	"net"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
)

// UDPTransport is the default Transport, backed by a single bound
// net.UDPConn. Datagrams carry one serialized message each, per §6.1.
type UDPTransport struct {
	conn  *net.UDPConn
	local address.Address
}

// ListenUDP binds a UDP socket on local and returns a ready Transport.
func ListenUDP(local address.Address) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", local.String())
	if err != nil {
		return nil, fmt.Errorf("transport: resolving %s: %w", local, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", local, err)
	}
	return &UDPTransport{conn: conn, local: local}, nil
}

func (t *UDPTransport) LocalAddr() address.Address { return t.local }

// Send is best-effort: a UDP write either transmits the whole datagram or
// fails outright, so "missing" is always 0 when err is nil and len(data)
// otherwise — there is no real partial-datagram case at the UDP layer, but
// the signature still reports it symmetrically with the Transport contract
// so reliable- and lossy-variant callers can share the same failure check.
func (t *UDPTransport) Send(data []byte, dst address.Address) (int, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", dst.String())
	if err != nil {
		return len(data), fmt.Errorf("transport: resolving destination %s: %w", dst, err)
	}
	n, err := t.conn.WriteToUDP(data, udpAddr)
	if err != nil {
		return len(data) - n, fmt.Errorf("transport: sending to %s: %w", dst, err)
	}
	return len(data) - n, nil
}

func (t *UDPTransport) Recv() (Datagram, error) {
	buf := make([]byte, 65535)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if isUseOfClosed(err) {
				return Datagram{}, ErrClosed
			}
			return Datagram{}, fmt.Errorf("transport: receiving: %w", err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		return Datagram{Data: data, Src: address.New(from.IP.String(), from.Port)}, nil
	}
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

func isUseOfClosed(err error) bool {
	if err == nil {
		return false
	}
	if opErr, ok := err.(*net.OpError); ok {
		return opErr.Err.Error() == "use of closed network connection"
	}
	return false
}
