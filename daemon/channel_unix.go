//go:build !windows

package daemon

import "net"

// DialDevChannel connects to a UNIX domain socket at path and uses it
// as the shared channel, for running the server detached from a real
// remote-desktop host during development.
func DialDevChannel(path string) (Channel, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
