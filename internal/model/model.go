package model

import (
	"net"
	"strings"
)

// Section is one declared configuration item. It is implemented by
// *Defaults, *Zone, *Forwarding, *Redirect, *Rule and *Include only.
type Section interface {
	section()
}

func (*Defaults) section() {}
func (*Zone) section() {}
func (*Forwarding) section() {}
func (*Redirect) section() {}
func (*Rule) section() {}
func (*Include) section() {}

// Defaults are the global policies and protections.
type Defaults struct {
	Input       Policy
	Output      Policy
	Forward     Policy
	SynFlood    bool
	SynRate     int
	SynBurst    int
	DropInvalid bool
}

// NewDefaults returns Defaults with SYN-flood protection (25/s, burst 50)
// and invalid-state dropping enabled, and every policy unspecified.
func NewDefaults() Defaults {
	return Defaults{
		SynFlood:    true,
		SynRate:     25,
		SynBurst:    50,
		DropInvalid: true,
	}
}

// Network binds a name to an interface. Addr is the last address the
// reconciler observed on Ifname.
type Network struct {
	Name    string
	Ifname  string
	IsAlias bool
	Addr    Cidr
	Zone    *Zone
}

// Device returns the kernel interface name. Alias networks are named
// "dev:label" and match on their parent device.
func (n *Network) Device() string {
	if dev, _, ok := strings.Cut(n.Ifname, ":"); ok && n.IsAlias {
		return dev
	}
	return n.Ifname
}

// Zone groups networks under common policies. Forwardings, Redirects and
// Rules are those whose source is this zone.
type Zone struct {
	Name        string
	Networks    []*Network
	Input       Policy
	Output      Policy
	Forward     Policy
	Masq        bool
	MTUFix      bool
	Forwardings []*Forwarding
	Redirects   []*Redirect
	Rules       []*Rule
}

// Direction selects one of a zone's three policies.
type Direction int

const (
	DirInput Direction = iota
	DirOutput
	DirForward
)

// EffectivePolicy returns the zone policy for dir, falling back to the
// default policy and then to drop.
func (z *Zone) EffectivePolicy(dir Direction, d Defaults) Policy {
	zp, dp := z.Input, d.Input
	switch dir {
	case DirOutput:
		zp, dp = z.Output, d.Output
	case DirForward:
		zp, dp = z.Forward, d.Forward
	}
	if zp != PolicyUnspec {
		return zp
	}
	if dp != PolicyUnspec {
		return dp
	}
	return PolicyDrop
}

// Forwarding permits traffic from Src to Dest.
type Forwarding struct {
	Src    *Zone
	Dest   *Zone
	MTUFix bool
	Masq   bool
}

// Redirect is a port forward into the source zone.
type Redirect struct {
	Src      *Zone
	SrcIP    *Cidr
	SrcMAC   net.HardwareAddr
	SrcPort  *PortRange
	SrcDPort *PortRange
	DestIP   *Cidr
	DestPort *PortRange
	Proto    Protocol
	Clone    bool
}

// Copy returns a deep copy of r.
func (r *Redirect) Copy() *Redirect {
	c := *r
	c.SrcIP = cloneCidr(r.SrcIP)
	c.SrcMAC = cloneMAC(r.SrcMAC)
	c.SrcPort = clonePorts(r.SrcPort)
	c.SrcDPort = clonePorts(r.SrcDPort)
	c.DestIP = cloneCidr(r.DestIP)
	c.DestPort = clonePorts(r.DestPort)
	return &c
}

// Rule is a filter rule. A Rule without Dest applies to traffic addressed
// to the router itself.
type Rule struct {
	Src      *Zone
	Dest     *Zone
	SrcIP    *Cidr
	DestIP   *Cidr
	SrcMAC   net.HardwareAddr
	SrcPort  *PortRange
	DestPort *PortRange
	Proto    Protocol
	ICMP     *ICMPType
	Target   Policy
	Clone    bool
}

// Copy returns a deep copy of r.
func (r *Rule) Copy() *Rule {
	c := *r
	c.SrcIP = cloneCidr(r.SrcIP)
	c.DestIP = cloneCidr(r.DestIP)
	c.SrcMAC = cloneMAC(r.SrcMAC)
	c.SrcPort = clonePorts(r.SrcPort)
	c.DestPort = clonePorts(r.DestPort)
	if r.ICMP != nil {
		t := *r.ICMP
		c.ICMP = &t
	}
	return &c
}

// Include is an external script run after every full rebuild.
type Include struct {
	Path string
}

func cloneCidr(c *Cidr) *Cidr {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func clonePorts(p *PortRange) *PortRange {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMAC(m net.HardwareAddr) net.HardwareAddr {
	if m == nil {
		return nil
	}
	return append(net.HardwareAddr(nil), m...)
}

// Model is a fully resolved firewall configuration.
type Model struct {
	Defaults Defaults
	Zones    []*Zone
	Includes []*Include
	// Sections lists every item in declaration order, clones included.
	Sections []Section
}

// Zone finds a zone by name.
func (m *Model) Zone(name string) *Zone {
	for _, z := range m.Zones {
		if z.Name == name {
			return z
		}
	}
	return nil
}

// Network finds a network by name across all zones.
func (m *Model) Network(name string) *Network {
	for _, z := range m.Zones {
		for _, n := range z.Networks {
			if n.Name == name {
				return n
			}
		}
	}
	return nil
}

// Networks returns every network in zone order.
func (m *Model) Networks() []*Network {
	var out []*Network
	for _, z := range m.Zones {
		out = append(out, z.Networks...)
	}
	return out
}

// SplitTCPUDP expands a tcp+udp redirect into a TCP original and a UDP
// clone. Other protocols are returned unchanged.
func SplitTCPUDP(r *Redirect) []*Redirect {
	if r.Proto.Kind != ProtoTCPUDP {
		return []*Redirect{r}
	}
	udp := r.Copy()
	udp.Proto = Protocol{Kind: ProtoUDP}
	udp.Clone = true
	r.Proto = Protocol{Kind: ProtoTCP}
	return []*Redirect{r, udp}
}

// SplitRuleTCPUDP is SplitTCPUDP for rules.
func SplitRuleTCPUDP(r *Rule) []*Rule {
	if r.Proto.Kind != ProtoTCPUDP {
		return []*Rule{r}
	}
	udp := r.Copy()
	udp.Proto = Protocol{Kind: ProtoUDP}
	udp.Clone = true
	r.Proto = Protocol{Kind: ProtoTCP}
	return []*Rule{r, udp}
}
