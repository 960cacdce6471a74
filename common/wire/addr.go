package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Address family tags carried on the wire.
const (
	AFIPv4 byte = 1
	AFIPv6 byte = 2
)

// Addr is a decoded TCP endpoint address: either a connected peer or a
// bound listener address.
type Addr struct {
	Family byte
	Port   uint16
	IP     net.IP
}

// EncodeAnswer emits the tagged layout: 1 byte family, 2 bytes port
// (network order), then 4 or 16 raw address bytes.
func EncodeAnswer(a Addr) []byte {
	var raw []byte
	if a.Family == AFIPv6 {
		raw = make([]byte, 19)
		ip := a.IP.To16()
		copy(raw[3:], ip)
	} else {
		raw = make([]byte, 7)
		ip := a.IP.To4()
		copy(raw[3:], ip)
	}
	raw[0] = a.Family
	binary.BigEndian.PutUint16(raw[1:3], a.Port)
	return raw
}

// DecodeAnswer is the inverse of EncodeAnswer, used by tests to
// exercise the round-trip law.
func DecodeAnswer(b []byte) (Addr, error) {
	if len(b) < 3 {
		return Addr{}, fmt.Errorf("wire: address answer too short (%d bytes)", len(b))
	}
	family := b[0]
	port := binary.BigEndian.Uint16(b[1:3])
	rest := b[3:]
	var ip net.IP
	switch family {
	case AFIPv4:
		if len(rest) != 4 {
			return Addr{}, fmt.Errorf("wire: ipv4 address answer wrong length (%d)", len(rest))
		}
		ip = net.IP(append([]byte(nil), rest...))
	case AFIPv6:
		if len(rest) != 16 {
			return Addr{}, fmt.Errorf("wire: ipv6 address answer wrong length (%d)", len(rest))
		}
		ip = net.IP(append([]byte(nil), rest...))
	default:
		return Addr{}, fmt.Errorf("wire: unknown address family %d", family)
	}
	return Addr{Family: family, Port: port, IP: ip}, nil
}

// FromNetAddr builds an Addr from a net.TCPAddr, choosing the wire family
// tag from the IP's actual shape.
func FromNetAddr(tcpAddr *net.TCPAddr) Addr {
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		return Addr{Family: AFIPv4, Port: uint16(tcpAddr.Port), IP: ip4}
	}
	return Addr{Family: AFIPv6, Port: uint16(tcpAddr.Port), IP: tcpAddr.IP.To16()}
}
