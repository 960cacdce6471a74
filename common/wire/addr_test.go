package wire

import (
	"net"
	"testing"
)

func TestAddrRoundTripIPv4(t *testing.T) {
	a := Addr{Family: AFIPv4, Port: 8080, IP: net.IPv4(127, 0, 0, 1).To4()}
	got, err := DecodeAnswer(EncodeAnswer(a))
	if err != nil {
		t.Fatalf("DecodeAnswer: %v", err)
	}
	if got.Family != a.Family || got.Port != a.Port || !got.IP.Equal(a.IP) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, a)
	}
}

func TestAddrRoundTripIPv6(t *testing.T) {
	a := Addr{Family: AFIPv6, Port: 443, IP: net.ParseIP("::1")}
	got, err := DecodeAnswer(EncodeAnswer(a))
	if err != nil {
		t.Fatalf("DecodeAnswer: %v", err)
	}
	if got.Family != a.Family || got.Port != a.Port || !got.IP.Equal(a.IP) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, a)
	}
}

func TestEncodeAnswerLength(t *testing.T) {
	v4 := EncodeAnswer(Addr{Family: AFIPv4, Port: 1, IP: net.IPv4(1, 2, 3, 4).To4()})
	if len(v4) != 7 {
		t.Fatalf("ipv4 answer length = %d, want 7", len(v4))
	}
	v6 := EncodeAnswer(Addr{Family: AFIPv6, Port: 1, IP: net.ParseIP("::1")})
	if len(v6) != 19 {
		t.Fatalf("ipv6 answer length = %d, want 19", len(v6))
	}
}

func TestDecodeAnswerUnknownFamily(t *testing.T) {
	if _, err := DecodeAnswer([]byte{9, 0, 0, 1, 2, 3, 4}); err == nil {
		t.Fatal("expected error for unknown family tag")
	}
}
