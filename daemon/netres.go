package daemon

import (
	"context"
	"fmt"
	"net"

	lru "github.com/hashicorp/golang-lru"
)

// resolverCacheSize bounds how many distinct (preference, host) pairs
// are remembered; large enough for a session juggling dozens of
// tunnels without growing unbounded. This cache is a pure performance
// addition with no effect on externally observable behavior.
const resolverCacheSize = 128

// Resolver caches hostname lookups for tcp-client tunnels so a tunnel
// that reconnects to a host it has already resolved does not pay
// another DNS round trip. A failed lookup is never cached, so a
// transient resolution failure does not stick.
type Resolver struct {
	cache *lru.Cache
}

// NewResolver constructs a Resolver with a fixed-size LRU cache.
func NewResolver() *Resolver {
	cache, err := lru.New(resolverCacheSize)
	if err != nil {
		// lru.New only fails for a non-positive size, which
		// resolverCacheSize never is.
		panic(fmt.Sprintf("daemon: lru.New: %v", err))
	}
	return &Resolver{cache: cache}
}

type resolverKey struct {
	pref AddrPref
	host string
}

// Resolve returns the IPs host resolves to, consulting and then
// populating the cache. PrefIPv4 and PrefIPv6 keep only addresses of
// that family, and a host with none of them is an error; PrefAny
// returns the IPv4 addresses followed by the IPv6 ones.
func (r *Resolver) Resolve(ctx context.Context, pref AddrPref, host string) ([]net.IP, error) {
	key := resolverKey{pref: pref, host: host}
	if cached, ok := r.cache.Get(key); ok {
		return cached.([]net.IP), nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	ips := filterByPreference(addrs, pref)
	if len(ips) == 0 {
		return nil, fmt.Errorf("daemon: host %q has no address for the requested family", host)
	}
	r.cache.Add(key, ips)
	return ips, nil
}

func filterByPreference(addrs []net.IPAddr, pref AddrPref) []net.IP {
	var v4, v6 []net.IP
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			v4 = append(v4, ip4)
		} else {
			v6 = append(v6, a.IP.To16())
		}
	}
	switch pref {
	case PrefIPv4:
		if len(v4) > 0 {
			return v4
		}
		return nil
	case PrefIPv6:
		if len(v6) > 0 {
			return v6
		}
		return nil
	default:
		return append(v4, v6...)
	}
}
