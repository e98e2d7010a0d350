package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"grimm.is/zonefwd/internal/pfctl"
)

// Policy is a zone or rule verdict.
type Policy int

const (
	PolicyUnspec Policy = iota
	PolicyDrop
	PolicyReject
	PolicyAccept
)

// ParsePolicy matches on the first letter, case-insensitive. Anything that
// is not accept, reject or drop is unspecified.
func ParsePolicy(s string) Policy {
	s = strings.TrimSpace(s)
	if s == "" {
		return PolicyUnspec
	}
	switch s[0] {
	case 'a', 'A':
		return PolicyAccept
	case 'r', 'R':
		return PolicyReject
	case 'd', 'D':
		return PolicyDrop
	}
	return PolicyUnspec
}

func (p Policy) String() string {
	switch p {
	case PolicyDrop:
		return "drop"
	case PolicyReject:
		return "reject"
	case PolicyAccept:
		return "accept"
	}
	return "unspec"
}

// ProtoKind enumerates protocol selectors.
type ProtoKind int

const (
	ProtoAll ProtoKind = iota
	ProtoTCP
	ProtoUDP
	ProtoTCPUDP
	ProtoICMP
	ProtoCustom
)

// Protocol is a protocol selector. Num is only meaningful for ProtoCustom.
type Protocol struct {
	Kind ProtoKind
	Num  uint8
}

// ParseProtocol accepts tcp, udp, tcpudp (or tcp+udp), icmp, all or a number.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return Protocol{Kind: ProtoAll}, nil
	case "tcp":
		return Protocol{Kind: ProtoTCP}, nil
	case "udp":
		return Protocol{Kind: ProtoUDP}, nil
	case "tcpudp", "tcp+udp":
		return Protocol{Kind: ProtoTCPUDP}, nil
	case "icmp":
		return Protocol{Kind: ProtoICMP}, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 255 {
		return Protocol{}, fmt.Errorf("invalid protocol %q", s)
	}
	return Protocol{Kind: ProtoCustom, Num: uint8(n)}, nil
}

// Number maps the selector to an IP protocol number; 0 is the wildcard.
func (p Protocol) Number() uint8 {
	switch p.Kind {
	case ProtoTCP:
		return 6
	case ProtoUDP:
		return 17
	case ProtoICMP:
		return 1
	case ProtoCustom:
		return p.Num
	}
	return 0
}

// HasPorts reports whether port matchers apply to this protocol.
func (p Protocol) HasPorts() bool {
	return p.Kind == ProtoTCP || p.Kind == ProtoUDP
}

func (p Protocol) String() string {
	switch p.Kind {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoTCPUDP:
		return "tcpudp"
	case ProtoICMP:
		return "icmp"
	case ProtoCustom:
		return strconv.Itoa(int(p.Num))
	}
	return "all"
}

// PortRange is an inclusive port range with Min <= Max.
type PortRange struct {
	Min, Max uint16
}

// ParsePortRange accepts "n", "a:b" and "a-b". Reversed bounds are swapped.
func ParsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		lo, hi, ok = strings.Cut(s, "-")
	}
	min, err := parsePort(lo)
	if err != nil {
		return PortRange{}, err
	}
	max := min
	if ok {
		if max, err = parsePort(hi); err != nil {
			return PortRange{}, err
		}
	}
	if min > max {
		min, max = max, min
	}
	return PortRange{Min: min, Max: max}, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}

// String renders "min:max", or a single port when Min == Max.
func (r PortRange) String() string {
	if r.Min == r.Max {
		return strconv.Itoa(int(r.Min))
	}
	return fmt.Sprintf("%d:%d", r.Min, r.Max)
}

// ICMPType selects an ICMP type either by name or by number. Code -1
// matches any code.
type ICMPType struct {
	Name string
	Type uint8
	Code int
}

// ParseICMPType accepts "type/code", "type" or a symbolic name.
func ParseICMPType(s string) (ICMPType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ICMPType{}, fmt.Errorf("empty icmp type")
	}
	if s[0] < '0' || s[0] > '9' {
		if _, _, ok := pfctl.LookupICMPName(s); !ok {
			return ICMPType{}, fmt.Errorf("unknown icmp type %q", s)
		}
		return ICMPType{Name: strings.ToLower(s), Code: -1}, nil
	}

	typ, code, hasCode := strings.Cut(s, "/")
	t, err := strconv.ParseUint(typ, 10, 8)
	if err != nil {
		return ICMPType{}, fmt.Errorf("invalid icmp type %q", s)
	}
	it := ICMPType{Type: uint8(t), Code: -1}
	if hasCode {
		c, err := strconv.ParseUint(code, 10, 8)
		if err != nil {
			return ICMPType{}, fmt.Errorf("invalid icmp code %q", s)
		}
		it.Code = int(c)
	}
	return it, nil
}

// String renders the name, "type/code" or "type".
func (t ICMPType) String() string {
	if t.Name != "" {
		return t.Name
	}
	if t.Code < 0 {
		return strconv.Itoa(int(t.Type))
	}
	return fmt.Sprintf("%d/%d", t.Type, t.Code)
}

// Resolve returns the numeric type and code for t.
func (t ICMPType) Resolve() (typ uint8, code int, ok bool) {
	if t.Name == "" {
		return t.Type, t.Code, true
	}
	return pfctl.LookupICMPName(t.Name)
}

// ParseMAC parses six colon-separated hex octets.
func ParseMAC(s string) (net.HardwareAddr, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil || len(hw) != 6 {
		return nil, fmt.Errorf("invalid MAC address %q", s)
	}
	return hw, nil
}
