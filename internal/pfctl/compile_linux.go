//go:build linux

package pfctl

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"
)

const (
	tcpFlagFIN = 0x01
	tcpFlagSYN = 0x02
	tcpFlagRST = 0x04
	tcpFlagPSH = 0x08
	tcpFlagACK = 0x10
	tcpFlagURG = 0x20
)

var tcpFlagNames = map[string]byte{
	"FIN": tcpFlagFIN,
	"SYN": tcpFlagSYN,
	"RST": tcpFlagRST,
	"PSH": tcpFlagPSH,
	"ACK": tcpFlagACK,
	"URG": tcpFlagURG,
	"ALL": 0x3f,
}

var ctStateNames = map[string]uint32{
	"INVALID":     expr.CtStateBitINVALID,
	"ESTABLISHED": expr.CtStateBitESTABLISHED,
	"RELATED":     expr.CtStateBitRELATED,
	"NEW":         expr.CtStateBitNEW,
}

var rejectICMPCodes = map[string]uint8{
	"icmp-net-unreachable":   0,
	"icmp-host-unreachable":  1,
	"icmp-proto-unreachable": 2,
	"icmp-port-unreachable":  3,
	"icmp-net-prohibited":    9,
	"icmp-host-prohibited":   10,
	"icmp-admin-prohibited":  13,
}

// validateEntry reports whether e can be expressed in nftables.
func validateEntry(e Entry) error {
	_, err := compileEntry(e)
	return err
}

// compileEntry translates an entry to nftables expressions. The comment
// matcher is not an expression; it is carried as rule user data.
func compileEntry(e Entry) ([]expr.Any, error) {
	if native, ok := e.native.([]expr.Any); ok {
		return native, nil
	}

	var exprs []expr.Any
	if e.InIface != "" {
		op := expr.CmpOpEq
		if e.InInvert {
			op = expr.CmpOpNeq
		}
		exprs = append(exprs, ifaceMatch(expr.MetaKeyIIFNAME, op, e.InIface)...)
	}
	if e.OutIface != "" {
		exprs = append(exprs, ifaceMatch(expr.MetaKeyOIFNAME, expr.CmpOpEq, e.OutIface)...)
	}
	if e.Src != nil {
		m, err := addrMatch(12, e.Src)
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		exprs = append(exprs, m...)
	}
	if e.Dst != nil {
		m, err := addrMatch(16, e.Dst)
		if err != nil {
			return nil, fmt.Errorf("destination: %w", err)
		}
		exprs = append(exprs, m...)
	}
	if e.Proto != 0 {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{e.Proto}},
		)
	}

	for _, m := range e.Matches {
		me, err := compileMatch(e, m)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", m.Name, err)
		}
		exprs = append(exprs, me...)
	}

	te, err := compileTarget(e.Target)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", e.Target.Name, err)
	}
	return append(exprs, te...), nil
}

func ifaceMatch(key expr.MetaKey, op expr.CmpOp, name string) []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: key, Register: 1},
		&expr.Cmp{Op: op, Register: 1, Data: ifname(name)},
	}
}

// ifname pads an interface name to IFNAMSIZ.
func ifname(n string) []byte {
	b := make([]byte, 16)
	copy(b, n)
	return b
}

func addrMatch(offset uint32, n *net.IPNet) ([]expr.Any, error) {
	ip := n.IP.To4()
	mask := net.IP(n.Mask).To4()
	if ip == nil || mask == nil {
		return nil, fmt.Errorf("%s is not IPv4", n)
	}
	exprs := []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       offset,
			Len:          4,
		},
	}
	ones, _ := n.Mask.Size()
	if ones == 0 {
		return nil, nil
	}
	if ones < 32 {
		exprs = append(exprs, &expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           []byte(mask),
			Xor:            []byte{0, 0, 0, 0},
		})
	}
	exprs = append(exprs, &expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte(ip.Mask(n.Mask))})
	return exprs, nil
}

func compileMatch(e Entry, m Match) ([]expr.Any, error) {
	switch m.Name {
	case "comment":
		return nil, nil

	case "conntrack", "state":
		flag := "--ctstate"
		if m.Name == "state" {
			flag = "--state"
		}
		v, ok := m.arg(flag)
		if !ok {
			return nil, fmt.Errorf("missing %s", flag)
		}
		var bits uint32
		for _, s := range strings.Split(v, ",") {
			b, ok := ctStateNames[strings.ToUpper(s)]
			if !ok {
				return nil, fmt.Errorf("unknown state %q", s)
			}
			bits |= b
		}
		return []expr.Any{
			&expr.Ct{Register: 1, Key: expr.CtKeySTATE},
			&expr.Bitwise{
				SourceRegister: 1,
				DestRegister:   1,
				Len:            4,
				Mask:           binaryutil.NativeEndian.PutUint32(bits),
				Xor:            binaryutil.NativeEndian.PutUint32(0),
			},
			&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: []byte{0, 0, 0, 0}},
		}, nil

	case "tcp", "udp":
		want := uint8(unix.IPPROTO_TCP)
		if m.Name == "udp" {
			want = unix.IPPROTO_UDP
		}
		if e.Proto != want {
			return nil, fmt.Errorf("requires -p %s", m.Name)
		}
		var exprs []expr.Any
		if v, ok := m.arg("--sport"); ok {
			pe, err := portMatch(0, v)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, pe...)
		}
		if v, ok := m.arg("--dport"); ok {
			pe, err := portMatch(2, v)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, pe...)
		}
		if m.Name == "tcp" {
			fe, err := tcpFlagsMatch(m)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, fe...)
		}
		return exprs, nil

	case "icmp":
		if e.Proto != unix.IPPROTO_ICMP {
			return nil, fmt.Errorf("requires -p icmp")
		}
		v, ok := m.arg("--icmp-type")
		if !ok {
			return nil, fmt.Errorf("missing --icmp-type")
		}
		return icmpMatch(v)

	case "mac":
		v, ok := m.arg("--mac-source")
		if !ok {
			return nil, fmt.Errorf("missing --mac-source")
		}
		hw, err := net.ParseMAC(v)
		if err != nil || len(hw) != 6 {
			return nil, fmt.Errorf("invalid MAC %q", v)
		}
		return []expr.Any{
			&expr.Meta{Key: expr.MetaKeyIIFTYPE, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.NativeEndian.PutUint16(unix.ARPHRD_ETHER)},
			&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseLLHeader, Offset: 6, Len: 6},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte(hw)},
		}, nil

	case "limit":
		return limitMatch(m)
	}
	return nil, fmt.Errorf("unsupported match")
}

func parsePorts(v string) (uint16, uint16, error) {
	lo, hi, isRange := strings.Cut(v, ":")
	min, err := strconv.ParseUint(lo, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port %q", v)
	}
	max := min
	if isRange {
		if max, err = strconv.ParseUint(hi, 10, 16); err != nil {
			return 0, 0, fmt.Errorf("invalid port %q", v)
		}
	}
	if min > max {
		return 0, 0, fmt.Errorf("invalid port range %q", v)
	}
	return uint16(min), uint16(max), nil
}

func portMatch(offset uint32, v string) ([]expr.Any, error) {
	min, max, err := parsePorts(v)
	if err != nil {
		return nil, err
	}
	exprs := []expr.Any{
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseTransportHeader, Offset: offset, Len: 2},
	}
	if min == max {
		return append(exprs, &expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.BigEndian.PutUint16(min)}), nil
	}
	return append(exprs, &expr.Range{
		Op:       expr.CmpOpEq,
		Register: 1,
		FromData: binaryutil.BigEndian.PutUint16(min),
		ToData:   binaryutil.BigEndian.PutUint16(max),
	}), nil
}

func parseTCPFlags(list string) (byte, error) {
	var b byte
	for _, f := range strings.Split(list, ",") {
		v, ok := tcpFlagNames[strings.ToUpper(f)]
		if !ok {
			return 0, fmt.Errorf("unknown tcp flag %q", f)
		}
		b |= v
	}
	return b, nil
}

func tcpFlagsMatch(m Match) ([]expr.Any, error) {
	var mask, comp byte
	switch {
	case m.has("--syn"):
		mask = tcpFlagSYN | tcpFlagRST | tcpFlagACK | tcpFlagFIN
		comp = tcpFlagSYN
	case m.has("--tcp-flags"):
		var args []string
		for i, a := range m.Args {
			if a == "--tcp-flags" && i+2 < len(m.Args) {
				args = m.Args[i+1 : i+3]
			}
		}
		if args == nil {
			return nil, fmt.Errorf("--tcp-flags needs mask and comparison")
		}
		var err error
		if mask, err = parseTCPFlags(args[0]); err != nil {
			return nil, err
		}
		if comp, err = parseTCPFlags(args[1]); err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}
	return []expr.Any{
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseTransportHeader, Offset: 13, Len: 1},
		&expr.Bitwise{SourceRegister: 1, DestRegister: 1, Len: 1, Mask: []byte{mask}, Xor: []byte{0}},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{comp}},
	}, nil
}

func icmpMatch(v string) ([]expr.Any, error) {
	var typ uint8
	code := -1
	if v != "" && (v[0] < '0' || v[0] > '9') {
		t, c, ok := LookupICMPName(v)
		if !ok {
			return nil, fmt.Errorf("unknown icmp type %q", v)
		}
		if strings.EqualFold(v, "any") {
			return nil, nil
		}
		typ, code = t, c
	} else {
		ts, cs, hasCode := strings.Cut(v, "/")
		t, err := strconv.ParseUint(ts, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid icmp type %q", v)
		}
		typ = uint8(t)
		if hasCode {
			c, err := strconv.ParseUint(cs, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid icmp code %q", v)
			}
			code = int(c)
		}
	}

	exprs := []expr.Any{
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseTransportHeader, Offset: 0, Len: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{typ}},
	}
	if code >= 0 {
		exprs = append(exprs,
			&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseTransportHeader, Offset: 1, Len: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{uint8(code)}},
		)
	}
	return exprs, nil
}

func limitMatch(m Match) ([]expr.Any, error) {
	v, ok := m.arg("--limit")
	if !ok {
		return nil, fmt.Errorf("missing --limit")
	}
	rate, unit, _ := strings.Cut(v, "/")
	r, err := strconv.ParseUint(rate, 10, 64)
	if err != nil || r == 0 {
		return nil, fmt.Errorf("invalid rate %q", v)
	}
	l := &expr.Limit{Type: expr.LimitTypePkts, Rate: r, Unit: expr.LimitTimeSecond}
	switch strings.ToLower(unit) {
	case "", "s", "sec", "second":
	case "m", "min", "minute":
		l.Unit = expr.LimitTimeMinute
	case "h", "hour":
		l.Unit = expr.LimitTimeHour
	case "d", "day":
		l.Unit = expr.LimitTimeDay
	default:
		return nil, fmt.Errorf("invalid rate unit %q", unit)
	}
	if b, ok := m.arg("--limit-burst"); ok {
		n, err := strconv.ParseUint(b, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid burst %q", b)
		}
		l.Burst = uint32(n)
	}
	return []expr.Any{l}, nil
}

func targetArg(t Target, flag string) (string, bool) {
	return Match{Args: t.Args}.arg(flag)
}

func compileTarget(t Target) ([]expr.Any, error) {
	switch t.Name {
	case TargetAccept:
		return []expr.Any{&expr.Verdict{Kind: expr.VerdictAccept}}, nil
	case TargetDrop:
		return []expr.Any{&expr.Verdict{Kind: expr.VerdictDrop}}, nil
	case TargetReturn:
		return []expr.Any{&expr.Verdict{Kind: expr.VerdictReturn}}, nil

	case TargetReject:
		with, ok := targetArg(t, "--reject-with")
		if !ok {
			with = "icmp-port-unreachable"
		}
		if with == "tcp-reset" {
			return []expr.Any{&expr.Reject{Type: unix.NFT_REJECT_TCP_RST}}, nil
		}
		code, ok := rejectICMPCodes[with]
		if !ok {
			return nil, fmt.Errorf("unsupported --reject-with %q", with)
		}
		return []expr.Any{&expr.Reject{Type: unix.NFT_REJECT_ICMP_UNREACH, Code: code}}, nil

	case TargetMasquerade:
		return []expr.Any{&expr.Masq{}}, nil

	case TargetDNAT:
		dest, ok := targetArg(t, "--to-destination")
		if !ok {
			return nil, fmt.Errorf("missing --to-destination")
		}
		return dnatExprs(dest)

	case TargetTCPMSS:
		var load expr.Any
		if v, ok := targetArg(t, "--set-mss"); ok {
			mss, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid --set-mss %q", v)
			}
			load = &expr.Immediate{Register: 1, Data: binaryutil.BigEndian.PutUint16(uint16(mss))}
		} else if Match(t).has("--clamp-mss-to-pmtu") {
			load = &expr.Rt{Register: 1, Key: expr.RtTCPMSS}
		} else {
			return nil, fmt.Errorf("needs --clamp-mss-to-pmtu or --set-mss")
		}
		// tcp option maxseg size: option kind 2, length at offset 2
		return []expr.Any{load, &expr.Exthdr{
			SourceRegister: 1,
			Type:           2,
			Offset:         2,
			Len:            2,
			Op:             expr.ExthdrOpTcpopt,
		}}, nil
	}

	if t.Name == "" {
		return nil, fmt.Errorf("no target")
	}
	return []expr.Any{&expr.Verdict{Kind: expr.VerdictJump, Chain: t.Name}}, nil
}

// dnatExprs loads ip[:port[-port]] into registers 1..3 for a NAT expression.
func dnatExprs(dest string) ([]expr.Any, error) {
	host, ports, hasPorts := strings.Cut(dest, ":")
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid destination %q", dest)
	}
	exprs := []expr.Any{&expr.Immediate{Register: 1, Data: []byte(ip)}}
	nat := &expr.NAT{
		Type:       expr.NATTypeDestNAT,
		Family:     unix.NFPROTO_IPV4,
		RegAddrMin: 1,
	}
	if hasPorts {
		min, max, err := parsePorts(strings.Replace(ports, "-", ":", 1))
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, &expr.Immediate{Register: 2, Data: binaryutil.BigEndian.PutUint16(min)})
		nat.RegProtoMin = 2
		nat.RegProtoMax = 2
		if max != min {
			exprs = append(exprs, &expr.Immediate{Register: 3, Data: binaryutil.BigEndian.PutUint16(max)})
			nat.RegProtoMax = 3
		}
	}
	return append(exprs, nat), nil
}
