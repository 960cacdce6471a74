package daemon

import (
	"net"
	"os/exec"

	"github.com/smarre/vctunnel/common/wire"
)

// Kind distinguishes the three endpoint shapes a tunnel can wrap.
type Kind int

const (
	KindTCPClient Kind = iota
	KindTCPListener
	KindProcess
)

func (k Kind) String() string {
	switch k {
	case KindTCPClient:
		return "tcp-client"
	case KindTCPListener:
		return "tcp-listener"
	case KindProcess:
		return "process"
	default:
		return "unknown"
	}
}

// State is a tunnel's lifecycle stage.
type State int

const (
	StatePending State = iota
	StateEstablished
	StateClosing
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Tunnel is the central entity of this server: a logical stream
// between the controller and a local endpoint, identified by a 1-byte
// id. Every field is touched only by the reactor goroutine.
type Tunnel struct {
	ID    byte
	Kind  Kind
	State State
	Peer  *wire.Addr

	Rio *IOBuf
	Wio *IOBuf

	Server bool

	// Endpoint is set once the tcp-client/process endpoint exists;
	// nil for a still-connecting tcp-client and always nil for a
	// tcp-listener (which instead owns Listener).
	Endpoint Endpoint
	Listener net.Listener

	// Process-only.
	proc *processEndpoint
	cmd  *exec.Cmd

	// closeEchoSuppressed is set when a tunnel is torn down in
	// response to an inbound CLOSE record, so the reactor does not
	// echo a second CLOSE back for it.
	closeEchoSuppressed bool

	// pendingWrite is true while a drain of Wio has been handed off
	// to a writer goroutine and has not yet reported back; it
	// prevents the reactor from starting a second concurrent drain
	// for the same tunnel.
	pendingWrite bool
}

func newTunnel(id byte, kind Kind, bufTag string) *Tunnel {
	return &Tunnel{
		ID:    id,
		Kind:  kind,
		State: StatePending,
		Rio:   NewIOBuf(bufTag, DefaultBufferCapacity),
		Wio:   NewIOBuf(bufTag, DefaultBufferCapacity),
	}
}

// releaseEndpoint closes whatever handle(s) the tunnel owns and frees
// its buffers. discardTunnel and destroyTunnel call it once per
// teardown.
func (t *Tunnel) releaseEndpoint() {
	if t.Endpoint != nil {
		_ = t.Endpoint.Close()
	}
	if t.Listener != nil {
		_ = t.Listener.Close()
	}
	t.Rio.Release()
	t.Wio.Release()
}
