package daemon

import (
	"net"
	"testing"

	"github.com/smarre/vctunnel/common/wire"
)

func TestDispatcherWriteAndReadFrame(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	d := NewDispatcher(a)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := d.Write(wire.CmdData, 0x42, []byte("payload")); err != nil {
			t.Errorf("Write: %v", err)
		}
	}()

	f, err := wire.ReadFrame(b)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	<-done
	if f.Cmd != wire.CmdData || f.TunID != 0x42 || string(f.Payload) != "payload" {
		t.Fatalf("got %+v", f)
	}
}

func TestDispatcherForwardDrainsRio(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	d := NewDispatcher(a)
	tun := newTunnel(0x10, KindTCPClient, "tcp")
	if err := tun.Rio.Append([]byte("hello world")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- d.Forward(tun) }()

	f, err := wire.ReadFrame(b)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if f.Cmd != wire.CmdData || f.TunID != 0x10 || string(f.Payload) != "hello world" {
		t.Fatalf("got %+v", f)
	}
	if tun.Rio.Len() != 0 {
		t.Fatalf("Rio.Len() after Forward = %d, want 0", tun.Rio.Len())
	}
}
