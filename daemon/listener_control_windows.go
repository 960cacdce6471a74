//go:build windows

package daemon

import "syscall"

// listenControl is a no-op on Windows: SO_REUSEADDR there permits
// simultaneous binds to the same address, which is not the semantic we
// want (we only want to tolerate our own prior listener's TIME_WAIT
// remnants), so we leave the default socket options untouched.
func listenControl(network, address string, c syscall.RawConn) error {
	return nil
}
