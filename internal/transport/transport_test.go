package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/address"
)

func TestFakeTransportDeliversAcrossBroker(t *testing.T) {
	broker := NewBroker()
	a := broker.NewTransport(address.New("a", 1))
	b := broker.NewTransport(address.New("b", 1))

	missing, err := a.Send([]byte("hello"), b.LocalAddr())
	require.NoError(t, err)
	require.Equal(t, 0, missing)

	dg, err := b.Recv()
	require.NoError(t, err)
	require.Equal(t, "hello", string(dg.Data))
	require.Equal(t, a.LocalAddr(), dg.Src)
}

func TestFakeTransportUnknownDestination(t *testing.T) {
	broker := NewBroker()
	a := broker.NewTransport(address.New("a", 1))

	missing, err := a.Send([]byte("x"), address.New("ghost", 9))
	require.Error(t, err)
	require.Equal(t, 1, missing)
}

func TestFakeTransportDropFunc(t *testing.T) {
	broker := NewBroker()
	a := broker.NewTransport(address.New("a", 1))
	b := broker.NewTransport(address.New("b", 1))
	broker.SetDropFunc(func(src, dst address.Address, data []byte) bool { return true })

	missing, err := a.Send([]byte("lost"), b.LocalAddr())
	require.NoError(t, err)
	require.Equal(t, len("lost"), missing)

	select {
	case <-time.After(20 * time.Millisecond):
	case <-func() chan Datagram {
		ch := make(chan Datagram, 1)
		go func() {
			dg, err := b.Recv()
			if err == nil {
				ch <- dg
			}
		}()
		return ch
	}():
		t.Fatal("dropped datagram was delivered")
	}
}

func TestFakeTransportCloseUnblocksRecv(t *testing.T) {
	broker := NewBroker()
	a := broker.NewTransport(address.New("a", 1))

	done := make(chan error, 1)
	go func() {
		_, err := a.Recv()
		done <- err
	}()
	require.NoError(t, a.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}
