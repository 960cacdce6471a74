//go:build !windows

package daemon

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// listenControl sets SO_REUSEADDR on the listening socket before bind,
// so a restarted server can immediately rebind a reverse-listener port
// still draining in TIME_WAIT.
func listenControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
