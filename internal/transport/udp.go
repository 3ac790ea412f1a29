package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/protocol"
)

const inboundBuffer = 256

// Endpoint is one side of the loopback datagram link. It owns a bound
// receive socket and sends fire-and-forget datagrams to the peer port.
// Delivery is never confirmed, the reconciliation layers above repair
// loss on their own.
type Endpoint struct {
	conn      *net.UDPConn
	peerAddr  *net.UDPAddr
	mirrorTo  *net.UDPAddr
	logger    *zap.Logger
	inbound   chan protocol.Message
	closeOnce sync.Once
}

// NewEndpoint binds recvPort on the loopback interface and targets
// sendPort for outgoing messages. With debug enabled every outgoing
// datagram is duplicated to sendPort+DebugPortOffset so a listener can
// observe the traffic without sitting in the path.
func NewEndpoint(recvPort, sendPort int, debug bool, logger *zap.Logger) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: recvPort})
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", recvPort, err)
	}

	e := &Endpoint{
		conn:     conn,
		peerAddr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: sendPort},
		logger:   logger,
		inbound:  make(chan protocol.Message, inboundBuffer),
	}
	if debug {
		e.mirrorTo = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: sendPort + protocol.DebugPortOffset}
	}

	go e.recvLoop()
	return e, nil
}

// Inbound returns the decoded message stream. The channel closes when
// the socket is gone, which callers must treat as fatal for the link.
func (e *Endpoint) Inbound() <-chan protocol.Message {
	return e.inbound
}

// SetDebug enables or disables the outgoing mirror at runtime, used by
// the adapter once the config push tells it the bridge runs in debug
// mode. Call from the same goroutine that sends.
func (e *Endpoint) SetDebug(debug bool) {
	if debug {
		e.mirrorTo = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: e.peerAddr.Port + protocol.DebugPortOffset}
	} else {
		e.mirrorTo = nil
	}
}

// Send encodes and fires one datagram at the peer. Errors are logged
// and swallowed, lost messages are repaired by the next reconciliation
// pass.
func (e *Endpoint) Send(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		e.logger.Error("Message encode failed", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}
	if _, err := e.conn.WriteToUDP(data, e.peerAddr); err != nil {
		e.logger.Warn("Send failed", zap.String("type", string(msg.Type)), zap.Error(err))
	}
	if e.mirrorTo != nil {
		if _, err := e.conn.WriteToUDP(data, e.mirrorTo); err != nil {
			e.logger.Debug("Debug mirror send failed", zap.Error(err))
		}
	}
}

func (e *Endpoint) recvLoop() {
	defer close(e.inbound)
	buf := make([]byte, 8192)
	for {
		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				e.logger.Error("Socket read failed", zap.Error(err))
			}
			return
		}
		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			e.logger.Warn("Malformed datagram dropped", zap.Int("bytes", n), zap.Error(err))
			continue
		}
		select {
		case e.inbound <- msg:
		default:
			e.logger.Warn("Inbound queue full, message dropped", zap.String("type", string(msg.Type)))
		}
	}
}

func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.conn.Close()
	})
	return err
}
