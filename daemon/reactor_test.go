package daemon

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/op/go-logging"

	"github.com/smarre/vctunnel/common/wire"
)

func testLogger() *logging.Logger {
	return logging.MustGetLogger("daemon_test")
}

// openPayload builds the af/port/host payload shared by CONN and BIND
// records.
func openPayload(af byte, port uint16, host string) []byte {
	p := make([]byte, 3+len(host))
	p[0] = af
	binary.BigEndian.PutUint16(p[1:3], port)
	copy(p[3:], host)
	return p
}

// TestServerConnectSuccess drives a CONN record against a real
// listening TCP server: it expects a success CONN answer carrying the
// connected peer's address, followed by the local server's "pong"
// reply arriving as DATA.
func TestServerConnectSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		_, _ = conn.Write([]byte("pong"))
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	portInt, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	port := uint16(portInt)

	controller, serverSide := net.Pipe()
	defer controller.Close()

	srv := NewServer(serverSide, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	if err := wire.WriteFrame(controller, wire.Frame{
		Cmd: wire.CmdConn, TunID: 0x10, Payload: openPayload(wire.AFIPv4, port, host),
	}); err != nil {
		t.Fatalf("WriteFrame CONN: %v", err)
	}

	ans, err := readFrameWithin(t, controller, 2*time.Second)
	if err != nil {
		t.Fatalf("read CONN answer: %v", err)
	}
	if ans.Cmd != wire.CmdConn || ans.TunID != 0x10 {
		t.Fatalf("got %+v", ans)
	}
	if ans.Payload[0] != byte(wire.ErrSuccess) {
		t.Fatalf("conn answer error byte = %d, want success", ans.Payload[0])
	}

	if err := wire.WriteFrame(controller, wire.Frame{
		Cmd: wire.CmdData, TunID: 0x10, Payload: []byte("hello"),
	}); err != nil {
		t.Fatalf("WriteFrame DATA: %v", err)
	}

	data, err := readFrameWithin(t, controller, 2*time.Second)
	if err != nil {
		t.Fatalf("read DATA: %v", err)
	}
	if data.Cmd != wire.CmdData || data.TunID != 0x10 || string(data.Payload) != "pong" {
		t.Fatalf("got %+v", data)
	}
}

// TestServerAcceptIDExhaustion covers id exhaustion on accept: once
// every other id is in use, a new accepted connection on a live
// listener is dropped silently and the listener itself survives.
func TestServerAcceptIDExhaustion(t *testing.T) {
	controller, serverSide := net.Pipe()
	defer controller.Close()

	srv := NewServer(serverSide, testLogger())

	// Fill the id space before the reactor goroutine starts, so the
	// only writer of the registry during the fill is this goroutine
	// (0x20 is left free for the listener's own BIND below).
	for id := 0; id < 255; id++ {
		if byte(id) == 0x20 {
			continue
		}
		srv.registry.Put(newTunnel(byte(id), KindTCPClient, "tcp"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	if err := wire.WriteFrame(controller, wire.Frame{
		Cmd: wire.CmdBind, TunID: 0x20, Payload: openPayload(wire.AFIPv4, 0, "127.0.0.1"),
	}); err != nil {
		t.Fatalf("WriteFrame BIND: %v", err)
	}

	ans, err := readFrameWithin(t, controller, 2*time.Second)
	if err != nil {
		t.Fatalf("read BIND answer: %v", err)
	}
	if ans.Cmd != wire.CmdBind || ans.Payload[0] != byte(wire.ErrSuccess) {
		t.Fatalf("got %+v", ans)
	}
	addr, err := wire.DecodeAnswer(ans.Payload[1:])
	if err != nil {
		t.Fatalf("DecodeAnswer: %v", err)
	}

	client, err := net.Dial("tcp", net.JoinHostPort(addr.IP.String(), strconv.Itoa(int(addr.Port))))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	// No RCONN should ever arrive; the connection is dropped silently,
	// which the test observes as the client's own read failing once the
	// server closes the accepted connection.
	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, readErr := client.Read(buf)
	if readErr == nil {
		t.Fatal("expected the dropped accepted connection to be closed")
	}
}

func readFrameWithin(t *testing.T, r net.Conn, d time.Duration) (wire.Frame, error) {
	t.Helper()
	if err := r.SetReadDeadline(time.Now().Add(d)); err != nil {
		return wire.Frame{}, err
	}
	f, err := wire.ReadFrame(r)
	_ = r.SetReadDeadline(time.Time{})
	return f, err
}
