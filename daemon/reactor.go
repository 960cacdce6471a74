// Package daemon implements the tunnel multiplexer: the per-tunnel
// state machines, the registry and id allocator, the channel
// dispatcher, and the reactor that drives all of them.
package daemon

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/op/go-logging"

	"github.com/smarre/vctunnel/common/wire"
)

type tunEventKind int

const (
	evConnectDone tunEventKind = iota
	evBindDone
	evAccepted
	evDataRead
	evReadClosed
	evWriteDone
	evProcessExited
)

// tunEvent is the one kind of message every endpoint goroutine ever
// sends: "here is what happened to the handle you gave me", tagged
// with the id of the owning tunnel. The reactor goroutine is the only
// reader of this channel, which is what lets it own the registry,
// buffers, and id allocator without locks.
type tunEvent struct {
	id   byte
	kind tunEventKind

	err error

	conn     net.Conn
	listener net.Listener
	proc     *processEndpoint

	data []byte
	n    int
}

// chanEvent carries one parsed inbound frame, or the terminal error
// that ended the shared channel.
type chanEvent struct {
	frame wire.Frame
	err   error
}

// Server holds all mutable server state explicitly rather than
// reaching through package-level variables: the registry, the
// dispatcher, the resolver, and the reactor's event channels all live
// here.
type Server struct {
	log        *logging.Logger
	registry   *Registry
	dispatcher *Dispatcher
	resolver   *Resolver

	tunEvents  chan tunEvent
	chanEvents chan chanEvent
}

// NewServer builds a Server around ch, the shared channel.
func NewServer(ch Channel, log *logging.Logger) *Server {
	return &Server{
		log:        log,
		registry:   NewRegistry(),
		dispatcher: NewDispatcher(ch),
		resolver:   NewResolver(),
		tunEvents:  make(chan tunEvent, 256),
		chanEvents: make(chan chanEvent, 1),
	}
}

// Run is the event engine's loop: it waits for either a tunnel event
// or an inbound frame and dispatches each in turn. It returns nil when
// ctx is cancelled (a requested, clean shutdown), and a non-nil error
// only when the shared channel fails or reports a protocol error; these
// are the only cases in which the loop terminates.
func (s *Server) Run(ctx context.Context) error {
	go s.readChannelLoop()

	for {
		select {
		case ev := <-s.tunEvents:
			s.handleTunnelEvent(ev)

		case ce := <-s.chanEvents:
			if ce.err != nil {
				return s.fatal(ce.err)
			}
			if err := s.handleInboundFrame(ce.frame); err != nil {
				return s.fatal(err)
			}

		case <-ctx.Done():
			s.shutdownAll()
			return nil
		}
	}
}

func (s *Server) readChannelLoop() {
	for {
		f, err := s.dispatcher.ReadFrame()
		s.chanEvents <- chanEvent{frame: f, err: err}
		if err != nil {
			return
		}
	}
}

func (s *Server) fatal(err error) error {
	s.log.Errorf("fatal channel error, shutting down: %v", err)
	s.shutdownAll()
	return err
}

// shutdownAll releases every live tunnel without announcing CLOSE
// records: the channel itself is about to close, so there is no
// controller left to notify.
func (s *Server) shutdownAll() {
	for id, tun := range s.snapshotTunnels() {
		tun.closeEchoSuppressed = true
		s.destroyTunnel(tun)
		s.log.Debugf("tunnel 0x%02x released during shutdown", id)
	}
	_ = s.dispatcher.Close()
}

func (s *Server) snapshotTunnels() map[byte]*Tunnel {
	out := make(map[byte]*Tunnel, s.registry.Len())
	for id := range s.registry.tunnels {
		out[id] = s.registry.tunnels[id]
	}
	return out
}

// ---- inbound frame handling ----

func (s *Server) handleInboundFrame(f wire.Frame) error {
	switch f.Cmd {
	case wire.CmdConn:
		return s.handleOpen(f, KindTCPClient)
	case wire.CmdBind:
		return s.handleOpen(f, KindTCPListener)
	case wire.CmdData:
		tun := s.registry.Lookup(f.TunID)
		if tun == nil {
			return &ErrProtocol{Reason: fmt.Sprintf("DATA for unknown tunnel 0x%02x", f.TunID)}
		}
		s.writeRequest(tun, f.Payload)
		return nil
	case wire.CmdClose:
		tun := s.registry.Lookup(f.TunID)
		if tun == nil {
			return &ErrProtocol{Reason: fmt.Sprintf("CLOSE for unknown tunnel 0x%02x", f.TunID)}
		}
		tun.closeEchoSuppressed = true
		s.destroyTunnel(tun)
		return nil
	default:
		return &ErrProtocol{Reason: fmt.Sprintf("unknown command %d", byte(f.Cmd))}
	}
}

func parseOpenPayload(payload []byte) (af byte, port uint16, host string, err error) {
	if len(payload) < 3 {
		err = fmt.Errorf("daemon: open request payload too short (%d bytes)", len(payload))
		return
	}
	af = payload[0]
	port = binary.BigEndian.Uint16(payload[1:3])
	host = string(payload[3:])
	return
}

// handleOpen dispatches an inbound CONN or BIND record. "port == 0
// means OS-assigned" applies to BIND; for CONN, port == 0 instead
// means the host field is a command line to spawn rather than a
// hostname to dial.
func (s *Server) handleOpen(f wire.Frame, cmdKind Kind) error {
	if s.registry.Has(f.TunID) {
		return &ErrProtocol{Reason: fmt.Sprintf("open request reuses live tunnel id 0x%02x", f.TunID)}
	}
	af, port, host, err := parseOpenPayload(f.Payload)
	if err != nil {
		return &ErrProtocol{Reason: err.Error()}
	}

	switch cmdKind {
	case KindTCPClient:
		if port == 0 {
			s.startProcess(f.TunID, host)
		} else {
			s.startConnect(f.TunID, af, port, host)
		}
	case KindTCPListener:
		s.startBind(f.TunID, af, port, host)
	}
	return nil
}

func prefFromAF(af byte) AddrPref {
	switch af {
	case wire.AFIPv4:
		return PrefIPv4
	case wire.AFIPv6:
		return PrefIPv6
	default:
		return PrefAny
	}
}
