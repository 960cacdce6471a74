package daemon

import (
	"context"
	"net"
	"strconv"
)

// listenTCP binds host:port (port == 0 asks the OS to assign one),
// returning the bound listener. The address actually bound (including
// the OS-assigned port) is read back from listener.Addr() by the
// caller.
func listenTCP(ctx context.Context, host string, port uint16) (net.Listener, error) {
	lc := net.ListenConfig{Control: listenControl}
	return lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
}
