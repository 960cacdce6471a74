package daemon

import (
	"fmt"

	"github.com/smarre/vctunnel/common/wire"
)

// forwardChunk bounds the payload of each DATA record that
// Dispatcher.Forward emits; Forward keeps emitting records until the
// tunnel's rio is empty.
const forwardChunk = 32 * 1024

// ErrProtocol marks an inbound record the dispatcher cannot make sense
// of: an unknown command, or a non-open record addressed to an unknown
// id. This is fatal: the channel may no longer be frame-aligned, so
// the whole server shuts down rather than just the offending tunnel.
type ErrProtocol struct {
	Reason string
}

func (e *ErrProtocol) Error() string {
	return fmt.Sprintf("daemon: protocol error: %s", e.Reason)
}

// Dispatcher frames tunnel bytes onto the shared channel and routes
// inbound records back to tunnels. It is driven exclusively by the
// reactor goroutine, so the channel writes it performs are never
// interleaved at the record boundary.
type Dispatcher struct {
	ch Channel
}

// NewDispatcher wraps ch for framing.
func NewDispatcher(ch Channel) *Dispatcher {
	return &Dispatcher{ch: ch}
}

// Write frames one record onto the shared channel. A write failure
// means the channel write itself failed for this tunnel's record; the
// caller closes the originating tunnel in response.
func (d *Dispatcher) Write(cmd wire.Command, id byte, payload []byte) error {
	return wire.WriteFrame(d.ch, wire.Frame{Cmd: cmd, TunID: id, Payload: payload})
}

// Forward drains tun.Rio in one or more DATA records addressed to
// tun.ID, bounded by forwardChunk, leaving Rio empty when it returns
// without error. A write failure is reported to the caller, which
// tears the tunnel down.
func (d *Dispatcher) Forward(tun *Tunnel) error {
	for tun.Rio.Len() > 0 {
		chunk := tun.Rio.Peek()
		if len(chunk) > forwardChunk {
			chunk = chunk[:forwardChunk]
		}
		if err := d.Write(wire.CmdData, tun.ID, chunk); err != nil {
			return err
		}
		tun.Rio.Consume(len(chunk))
	}
	return nil
}

// ReadFrame blocks for the next inbound record; io.EOF (or any other
// error) means the shared channel itself failed, which is always
// fatal.
func (d *Dispatcher) ReadFrame() (wire.Frame, error) {
	return wire.ReadFrame(d.ch)
}

// Close releases the underlying channel.
func (d *Dispatcher) Close() error {
	return d.ch.Close()
}
