package daemon

import (
	"fmt"
	"io"
)

// AddrPref selects which address family a tcp-client endpoint dials;
// PrefAny accepts either.
type AddrPref byte

const (
	PrefIPv4 AddrPref = iota
	PrefIPv6
	PrefAny
)

// Endpoint is the uniform contract the three drivers satisfy: create
// is done by the type-specific constructor (dialTCPClient, listenTCP,
// spawnProcess), read/write/close are this interface. Go's blocking
// net.Conn and os.File already satisfy it directly; would-block is
// modeled by running the call on its own goroutine rather than by a
// distinguished return value (see daemon/reactor.go).
type Endpoint interface {
	io.ReadWriteCloser
}

func wrapAcceptError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("daemon: accept: %w", err)
}
