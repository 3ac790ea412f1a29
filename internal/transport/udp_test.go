package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/protocol"
)

func pair(t *testing.T, portA, portB int) (*Endpoint, *Endpoint) {
	t.Helper()
	a, err := NewEndpoint(portA, portB, false, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	b, err := NewEndpoint(portB, portA, false, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return a, b
}

func recvOne(t *testing.T, e *Endpoint) protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-e.Inbound():
		require.True(t, ok, "inbound closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return protocol.Message{}
	}
}

func TestSendReceive(t *testing.T) {
	a, b := pair(t, 19700, 19701)

	a.Send(protocol.NewScroll(0, protocol.DirUp))
	msg := recvOne(t, b)
	assert.Equal(t, protocol.TypeScroll, msg.Type)

	b.Send(protocol.NewAnnounceAdapter(0))
	msg = recvOne(t, a)
	assert.Equal(t, protocol.TypeAnnounceAdapter, msg.Type)
}

func TestMalformedDatagramDropped(t *testing.T) {
	a, b := pair(t, 19710, 19711)

	raw, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19711})
	require.NoError(t, err)
	defer raw.Close()

	_, err = raw.Write([]byte("{not json"))
	require.NoError(t, err)

	// the link keeps working after garbage
	a.Send(protocol.NewRefresh(0))
	msg := recvOne(t, b)
	assert.Equal(t, protocol.TypeRefresh, msg.Type)
}

func TestDebugMirrorDuplicatesOutgoing(t *testing.T) {
	mirror, err := net.ListenUDP("udp", &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: 19721 + protocol.DebugPortOffset,
	})
	require.NoError(t, err)
	defer mirror.Close()

	a, err := NewEndpoint(19720, 19721, true, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	b, err := NewEndpoint(19721, 19720, false, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	a.Send(protocol.NewRefresh(3))

	msg := recvOne(t, b)
	assert.Equal(t, protocol.TypeRefresh, msg.Type)

	mirror.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 8192)
	n, _, err := mirror.ReadFromUDP(buf)
	require.NoError(t, err)

	mirrored, err := protocol.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeRefresh, mirrored.Type)
	assert.Equal(t, 3, mirrored.DisplayOrder)
}

func TestCloseEndsInbound(t *testing.T) {
	a, err := NewEndpoint(19730, 19731, false, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	select {
	case _, ok := <-a.Inbound():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound not closed")
	}
}
