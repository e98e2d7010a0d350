package firewall

import (
	"fmt"
	"net"
	"strconv"

	"grimm.is/zonefwd/internal/model"
	"grimm.is/zonefwd/internal/pfctl"
)

// policyChain maps a verdict to its terminal chain. Unspecified is drop.
func policyChain(p model.Policy) string {
	switch p {
	case model.PolicyAccept:
		return ChainAccept
	case model.PolicyReject:
		return ChainReject
	}
	return ChainDrop
}

// basePolicy maps a default policy to a built-in chain policy.
func basePolicy(p model.Policy) pfctl.Policy {
	if p == model.PolicyAccept {
		return pfctl.PolicyAccept
	}
	return pfctl.PolicyDrop
}

func jump(chain string) pfctl.Target {
	return pfctl.Target{Name: chain}
}

// cidrNet converts a matcher address to a network; nil and /0 match anything.
func cidrNet(c *model.Cidr) *net.IPNet {
	if c == nil || c.Prefix == 0 {
		return nil
	}
	return c.Network().IPNet()
}

func addMAC(e *pfctl.Entry, mac net.HardwareAddr) {
	if len(mac) == 0 {
		return
	}
	e.AddMatch("mac", "--mac-source", mac.String())
}

// addPorts attaches port matchers, only for tcp and udp.
func addPorts(e *pfctl.Entry, proto model.Protocol, sport, dport *model.PortRange) {
	if !proto.HasPorts() || (sport == nil && dport == nil) {
		return
	}
	var args []string
	if sport != nil {
		args = append(args, "--sport", sport.String())
	}
	if dport != nil {
		args = append(args, "--dport", dport.String())
	}
	e.AddMatch(proto.String(), args...)
}

// addICMP attaches an ICMP type matcher, only for icmp.
func addICMP(e *pfctl.Entry, proto model.Protocol, t *model.ICMPType) {
	if proto.Kind != model.ProtoICMP || t == nil {
		return
	}
	e.AddMatch("icmp", "--icmp-type", t.String())
}

func mssClamp(e *pfctl.Entry) {
	e.Proto = 6
	e.AddMatch("tcp", "--tcp-flags", "SYN,RST", "SYN")
}

func mssTarget() pfctl.Target {
	return pfctl.Target{Name: pfctl.TargetTCPMSS, Args: []string{"--clamp-mss-to-pmtu"}}
}

// dnatDestination renders ip[:port[-port]]. Ports only apply to tcp and udp.
func dnatDestination(r *model.Redirect) string {
	dest := r.DestIP.IP().String()
	if !r.Proto.HasPorts() || r.DestPort == nil {
		return dest
	}
	if r.DestPort.Min == r.DestPort.Max {
		return dest + ":" + strconv.Itoa(int(r.DestPort.Min))
	}
	return fmt.Sprintf("%s:%d-%d", dest, r.DestPort.Min, r.DestPort.Max)
}

// redirectPort is the port traffic arrives on after translation.
func redirectPort(r *model.Redirect) *model.PortRange {
	if r.DestPort != nil {
		return r.DestPort
	}
	return r.SrcDPort
}

func ruleEntry(r *model.Rule, in, out *model.Network) pfctl.Entry {
	e := pfctl.Entry{
		InIface: in.Device(),
		Src:     cidrNet(r.SrcIP),
		Dst:     cidrNet(r.DestIP),
		Proto:   r.Proto.Number(),
	}
	if out != nil {
		e.OutIface = out.Device()
	}
	addMAC(&e, r.SrcMAC)
	addPorts(&e, r.Proto, r.SrcPort, r.DestPort)
	addICMP(&e, r.Proto, r.ICMP)
	e.SetComment(Comment(TagRule, in.Name, r.Src.Name))
	e.Target = jump(policyChain(r.Target))
	return e
}

func redirectDNAT(r *model.Redirect, n *model.Network) pfctl.Entry {
	e := pfctl.Entry{
		InIface: n.Device(),
		Src:     cidrNet(r.SrcIP),
		Proto:   r.Proto.Number(),
	}
	addMAC(&e, r.SrcMAC)
	addPorts(&e, r.Proto, r.SrcPort, r.SrcDPort)
	e.SetComment(Comment(TagRedirect, n.Name, r.Src.Name))
	e.Target = pfctl.Target{Name: pfctl.TargetDNAT, Args: []string{"--to-destination", dnatDestination(r)}}
	return e
}

func redirectAccept(r *model.Redirect, n *model.Network) pfctl.Entry {
	e := pfctl.Entry{
		InIface: n.Device(),
		Src:     cidrNet(r.SrcIP),
		Dst:     cidrNet(r.DestIP),
		Proto:   r.Proto.Number(),
	}
	addMAC(&e, r.SrcMAC)
	addPorts(&e, r.Proto, r.SrcPort, redirectPort(r))
	e.SetComment(Comment(TagRedirect, n.Name, r.Src.Name))
	e.Target = jump(ChainAccept)
	return e
}

// redirectLoopback masquerades redirected traffic that did not arrive on
// the redirect's interface, so replies from the target return through the
// router.
func redirectLoopback(r *model.Redirect, n *model.Network) pfctl.Entry {
	e := pfctl.Entry{
		InIface:  n.Device(),
		InInvert: true,
		Dst:      cidrNet(r.DestIP),
		Proto:    r.Proto.Number(),
	}
	addPorts(&e, r.Proto, nil, redirectPort(r))
	e.SetComment(Comment(TagRedirect, n.Name, r.Src.Name))
	e.Target = pfctl.Target{Name: pfctl.TargetMasquerade}
	return e
}
