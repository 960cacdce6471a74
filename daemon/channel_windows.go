//go:build windows

package daemon

import "github.com/Microsoft/go-winio"

// DialDevChannel connects to a named pipe at path and uses it as the
// shared channel, grounded on daemon/ssh_agent_windows.go's
// winio.DialPipe call and common/socket/socket_windows.go's
// winio.ListenPipe, for running the server detached from a real
// remote-desktop host during development.
func DialDevChannel(path string) (Channel, error) {
	conn, err := winio.DialPipe(path, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
