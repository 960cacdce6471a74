package daemon

import (
	"context"
	"net"
	"os/exec"

	"github.com/smarre/vctunnel/common/wire"
)

// ---- open requests: create-connect / create-bind / create-process ----

func (s *Server) startConnect(id byte, af byte, port uint16, host string) {
	tun := newTunnel(id, KindTCPClient, "tcp")
	s.registry.Put(tun)
	pref := prefFromAF(af)
	go func() {
		conn, err := dialTCPClient(context.Background(), s.resolver, pref, host, port)
		if err != nil {
			s.tunEvents <- tunEvent{id: id, kind: evConnectDone, err: err}
			return
		}
		s.tunEvents <- tunEvent{id: id, kind: evConnectDone, conn: conn}
	}()
}

func (s *Server) startBind(id byte, af byte, port uint16, host string) {
	tun := newTunnel(id, KindTCPListener, "tcp-listen")
	tun.Server = true
	s.registry.Put(tun)
	_ = af // listener binds the literal host string; af only disambiguates dial preference for CONN
	go func() {
		l, err := listenTCP(context.Background(), host, port)
		if err != nil {
			s.tunEvents <- tunEvent{id: id, kind: evBindDone, err: err}
			return
		}
		s.tunEvents <- tunEvent{id: id, kind: evBindDone, listener: l}
	}()
}

func (s *Server) startProcess(id byte, command string) {
	tun := newTunnel(id, KindProcess, "process")
	s.registry.Put(tun)
	go func() {
		proc, err := spawnProcess(command)
		if err != nil {
			s.tunEvents <- tunEvent{id: id, kind: evConnectDone, err: err}
			return
		}
		s.tunEvents <- tunEvent{id: id, kind: evConnectDone, proc: proc}
	}()
}

// ---- tunnel event handling ----

func (s *Server) handleTunnelEvent(ev tunEvent) {
	switch ev.kind {
	case evConnectDone:
		s.onConnectDone(ev)
	case evBindDone:
		s.onBindDone(ev)
	case evAccepted:
		s.onAccepted(ev)
	case evDataRead:
		s.onDataRead(ev)
	case evReadClosed:
		s.onReadClosed(ev)
	case evWriteDone:
		s.onWriteDone(ev)
	case evProcessExited:
		s.onProcessExited(ev)
	}
}

func (s *Server) onConnectDone(ev tunEvent) {
	tun := s.registry.Lookup(ev.id)
	if tun == nil {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		if ev.proc != nil {
			_ = ev.proc.Close()
		}
		return
	}

	if ev.err != nil {
		code := wire.ClassifyDial(ev.err)
		s.log.Noticef("tunnel 0x%02x: open failed (%s)", tun.ID, code)
		_ = s.dispatcher.Write(wire.CmdConn, tun.ID, []byte{byte(code)})
		s.discardTunnel(tun)
		return
	}

	tun.State = StateEstablished
	var ans []byte
	if ev.proc != nil {
		tun.proc = ev.proc
		tun.cmd = ev.proc.cmd
		tun.Endpoint = ev.proc
		// A process tunnel has no socket address to report; the
		// success answer carries only the error byte.
		ans = []byte{byte(wire.ErrSuccess)}
	} else {
		tun.Endpoint = ev.conn
		addr := wire.FromNetAddr(ev.conn.RemoteAddr().(*net.TCPAddr))
		tun.Peer = &addr
		ans = append([]byte{byte(wire.ErrSuccess)}, wire.EncodeAnswer(addr)...)
	}

	if err := s.dispatcher.Write(wire.CmdConn, tun.ID, ans); err != nil {
		s.log.Warningf("tunnel 0x%02x: conn-ans write failed: %v", tun.ID, err)
		s.discardTunnel(tun)
		return
	}
	s.log.Infof("tunnel 0x%02x connected (%s)", tun.ID, tun.Kind)
	s.startEndpointPumps(tun)
}

func (s *Server) onBindDone(ev tunEvent) {
	tun := s.registry.Lookup(ev.id)
	if tun == nil {
		if ev.listener != nil {
			_ = ev.listener.Close()
		}
		return
	}

	if ev.err != nil {
		code := wire.ClassifyDial(ev.err)
		s.log.Noticef("tunnel 0x%02x: bind failed (%s)", tun.ID, code)
		_ = s.dispatcher.Write(wire.CmdBind, tun.ID, []byte{byte(code)})
		s.discardTunnel(tun)
		return
	}

	tun.Listener = ev.listener
	tun.State = StateEstablished
	addr := wire.FromNetAddr(ev.listener.Addr().(*net.TCPAddr))
	tun.Peer = &addr

	ans := append([]byte{byte(wire.ErrSuccess)}, wire.EncodeAnswer(addr)...)
	if err := s.dispatcher.Write(wire.CmdBind, tun.ID, ans); err != nil {
		s.log.Warningf("tunnel 0x%02x: bind-ans write failed: %v", tun.ID, err)
		s.discardTunnel(tun)
		return
	}
	s.log.Infof("tunnel 0x%02x listening on %s", tun.ID, tun.Listener.Addr())

	go func(listenerID byte, l net.Listener) {
		for {
			conn, acceptErr := l.Accept()
			s.tunEvents <- tunEvent{id: listenerID, kind: evAccepted, conn: conn, err: wrapAcceptError(acceptErr)}
			if acceptErr != nil {
				return
			}
		}
	}(tun.ID, tun.Listener)
}

func (s *Server) onAccepted(ev tunEvent) {
	listener := s.registry.Lookup(ev.id)
	if listener == nil {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}

	if ev.err != nil {
		// The listener itself has failed; it was already established,
		// so its teardown is announced with a CLOSE record.
		s.log.Warningf("tunnel 0x%02x: listener failed: %v", listener.ID, ev.err)
		s.destroyTunnel(listener)
		return
	}

	newID, err := s.registry.Allocate()
	if err != nil {
		// id exhaustion on accept is a soft error: drop the client
		// silently and keep the listener alive.
		s.log.Warningf("tunnel 0x%02x: id space exhausted, dropping accepted connection", listener.ID)
		_ = ev.conn.Close()
		return
	}

	child := newTunnel(newID, KindTCPClient, "tcp")
	child.State = StateEstablished
	child.Endpoint = ev.conn
	addr := wire.FromNetAddr(ev.conn.RemoteAddr().(*net.TCPAddr))
	child.Peer = &addr
	s.registry.Put(child)

	answer := wire.EncodeAnswer(addr)
	payload := make([]byte, 1+len(answer))
	payload[0] = newID
	copy(payload[1:], answer)

	if err := s.dispatcher.Write(wire.CmdRConn, listener.ID, payload); err != nil {
		s.log.Warningf("tunnel 0x%02x: rconn-ans write failed: %v", listener.ID, err)
		s.discardTunnel(child)
		return
	}
	s.log.Infof("tunnel 0x%02x accepted on listener 0x%02x from %s", child.ID, listener.ID, child.Peer.IP)
	s.startEndpointPumps(child)
}

func (s *Server) onDataRead(ev tunEvent) {
	tun := s.registry.Lookup(ev.id)
	if tun == nil {
		return
	}
	if err := tun.Rio.Append(ev.data); err != nil {
		s.log.Warningf("tunnel 0x%02x: %v, closing", tun.ID, err)
		s.destroyTunnel(tun)
		return
	}
	if err := s.dispatcher.Forward(tun); err != nil {
		s.log.Warningf("tunnel 0x%02x: forward failed: %v", tun.ID, err)
		s.destroyTunnel(tun)
	}
}

func (s *Server) onReadClosed(ev tunEvent) {
	tun := s.registry.Lookup(ev.id)
	if tun == nil {
		return
	}
	s.destroyTunnel(tun)
}

func (s *Server) onWriteDone(ev tunEvent) {
	tun := s.registry.Lookup(ev.id)
	if tun == nil {
		return
	}
	tun.pendingWrite = false
	if ev.err != nil {
		s.log.Warningf("tunnel 0x%02x: write failed: %v", tun.ID, ev.err)
		s.destroyTunnel(tun)
		return
	}
	tun.Wio.Consume(ev.n)
	if tun.Wio.Len() > 0 {
		s.startDrain(tun)
	}
}

func (s *Server) onProcessExited(ev tunEvent) {
	tun := s.registry.Lookup(ev.id)
	if tun == nil {
		return
	}
	s.destroyTunnel(tun)
}

// ---- write-request ----

// writeRequest appends payload to tun's outbound buffer (the
// controller's DATA record for this tunnel) and, if the tunnel is
// established with nothing already in flight, starts draining it
// immediately. If the tunnel is still pending, the bytes sit until the
// pending→established transition calls startEndpointPumps, which
// drains anything queued. A buffer-full append is the backpressure
// teardown point.
func (s *Server) writeRequest(tun *Tunnel, payload []byte) {
	wasEmpty := tun.Wio.Len() == 0
	if err := tun.Wio.Append(payload); err != nil {
		s.log.Warningf("tunnel 0x%02x: %v, closing", tun.ID, err)
		s.destroyTunnel(tun)
		return
	}
	if tun.State == StateEstablished && wasEmpty && !tun.pendingWrite {
		s.startDrain(tun)
	}
}

func (s *Server) startDrain(tun *Tunnel) {
	chunk := tun.Wio.Peek()
	if len(chunk) > writeChunk {
		chunk = chunk[:writeChunk]
	}
	data := make([]byte, len(chunk))
	copy(data, chunk)
	tun.pendingWrite = true
	go writePump(tun.ID, tun.Endpoint, data, s.tunEvents)
}

func (s *Server) startEndpointPumps(tun *Tunnel) {
	go readPump(tun.ID, tun.Endpoint, s.tunEvents)
	if tun.Kind == KindProcess && tun.cmd != nil {
		go func(id byte, cmd *exec.Cmd) {
			err := cmd.Wait()
			s.tunEvents <- tunEvent{id: id, kind: evProcessExited, err: err}
		}(tun.ID, tun.cmd)
	}
	if tun.Wio.Len() > 0 && !tun.pendingWrite {
		s.startDrain(tun)
	}
}

// ---- teardown ----

// discardTunnel releases a tunnel that never reached established state
// (or whose just-sent success answer failed to reach the controller):
// the CONN/BIND error answer (or the inability to deliver the success
// one) already tells the controller this id is dead, so no separate
// CLOSE record follows.
func (s *Server) discardTunnel(tun *Tunnel) {
	tun.State = StateClosing
	tun.releaseEndpoint()
	s.registry.Remove(tun.ID)
}

// destroyTunnel tears down an established tunnel, emitting exactly one
// CLOSE record unless the teardown was itself triggered by an inbound
// CLOSE, in which case no echo is emitted.
func (s *Server) destroyTunnel(tun *Tunnel) {
	tun.State = StateClosing
	tun.releaseEndpoint()
	s.registry.Remove(tun.ID)
	if tun.closeEchoSuppressed {
		return
	}
	if err := s.dispatcher.Write(wire.CmdClose, tun.ID, nil); err != nil {
		s.log.Warningf("tunnel 0x%02x: close-ans write failed: %v", tun.ID, err)
	}
}
