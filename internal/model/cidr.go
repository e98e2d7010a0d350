package model

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Cidr is an IPv4 address with a prefix length. The zero value is the
// empty Cidr: the network currently has no address.
type Cidr struct {
	Addr   [4]byte
	Prefix int
}

// CidrFromIPNet converts an IPv4 net.IPNet. Non-IPv4 input yields the empty Cidr.
func CidrFromIPNet(n *net.IPNet) Cidr {
	if n == nil {
		return Cidr{}
	}
	ip4 := n.IP.To4()
	if ip4 == nil {
		return Cidr{}
	}
	ones, bits := n.Mask.Size()
	if bits != 32 {
		ones = 32
	}
	var c Cidr
	copy(c.Addr[:], ip4)
	c.Prefix = ones
	return c
}

// ParseCidr accepts "a.b.c.d", "a.b.c.d/len" and "a.b.c.d/m.m.m.m".
// A bare address gets a /32 prefix.
func ParseCidr(s string) (Cidr, error) {
	s = strings.TrimSpace(s)
	addr, mask, hasMask := strings.Cut(s, "/")

	ip := net.ParseIP(addr).To4()
	if ip == nil {
		return Cidr{}, fmt.Errorf("invalid IPv4 address %q", addr)
	}

	var c Cidr
	copy(c.Addr[:], ip)
	c.Prefix = 32

	if !hasMask {
		return c, nil
	}

	if strings.Contains(mask, ".") {
		m := net.ParseIP(mask).To4()
		if m == nil {
			return Cidr{}, fmt.Errorf("invalid netmask %q", mask)
		}
		ones, bits := net.IPMask(m).Size()
		if bits == 0 {
			return Cidr{}, fmt.Errorf("non-contiguous netmask %q", mask)
		}
		c.Prefix = ones
		return c, nil
	}

	n, err := strconv.Atoi(mask)
	if err != nil || n < 0 || n > 32 {
		return Cidr{}, fmt.Errorf("invalid prefix length %q", mask)
	}
	c.Prefix = n
	return c, nil
}

// IsEmpty reports whether c means "no address".
func (c Cidr) IsEmpty() bool {
	return c.Addr == [4]byte{} && c.Prefix == 0
}

// Equal compares two Cidrs; all empty Cidrs are equal.
func (c Cidr) Equal(o Cidr) bool {
	if c.IsEmpty() || o.IsEmpty() {
		return c.IsEmpty() && o.IsEmpty()
	}
	return c.Addr == o.Addr && c.Prefix == o.Prefix
}

// IP returns the address as a net.IP.
func (c Cidr) IP() net.IP {
	return net.IPv4(c.Addr[0], c.Addr[1], c.Addr[2], c.Addr[3]).To4()
}

// Mask returns the contiguous-prefix mask for c.Prefix.
func (c Cidr) Mask() net.IPMask {
	return net.CIDRMask(c.Prefix, 32)
}

// MaskBits returns the mask as a host-order integer: ^((1<<(32-prefix))-1).
func (c Cidr) MaskBits() uint32 {
	if c.Prefix <= 0 {
		return 0
	}
	return ^uint32((uint64(1) << (32 - c.Prefix)) - 1)
}

// IPNet returns c as an address+mask pair. The address is kept as given,
// not truncated to the network.
func (c Cidr) IPNet() *net.IPNet {
	return &net.IPNet{IP: c.IP(), Mask: c.Mask()}
}

// Network returns c with host bits cleared.
func (c Cidr) Network() Cidr {
	v := binary.BigEndian.Uint32(c.Addr[:]) & c.MaskBits()
	var n Cidr
	binary.BigEndian.PutUint32(n.Addr[:], v)
	n.Prefix = c.Prefix
	return n
}

func (c Cidr) String() string {
	if c.IsEmpty() {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d/%d", c.Addr[0], c.Addr[1], c.Addr[2], c.Addr[3], c.Prefix)
}
