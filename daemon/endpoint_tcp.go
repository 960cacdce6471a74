package daemon

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// dialTCPClient resolves host (through the shared Resolver) and dials
// it, trying only addresses of the family pref selects. It is always run on its own
// goroutine by the caller, implementing create-connect's non-blocking
// connect attempt by running the blocking net.Dialer call off the
// reactor goroutine and reporting the result as an event.
func dialTCPClient(ctx context.Context, res *Resolver, pref AddrPref, host string, port uint16) (net.Conn, error) {
	ips, err := res.Resolve(ctx, pref, host)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{}
	var lastErr error
	for _, ip := range ips {
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("daemon: no address to dial for host %q", host)
	}
	return nil, lastErr
}
