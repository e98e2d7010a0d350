package config

import (
	"fmt"
	"net"
	"strings"
	"unicode"

	"grimm.is/zonefwd/internal/model"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// builder resolves decoded blocks into a model.
type builder struct {
	cfg      *Config
	networks map[string]*networkBlock
	owner    map[string]string
	errs     ValidationErrors
}

func (b *builder) fail(field, format string, args ...any) {
	b.errs = append(b.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// checkName rejects names that cannot appear as a net=<name> or
// zone=<name> token in an entry comment.
func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '=' || r == '"' {
			return fmt.Errorf("name %q contains invalid character %q", name, r)
		}
	}
	return nil
}

func build(items []item) (*Config, ValidationErrors) {
	b := &builder{
		cfg: &Config{
			Daemon: DefaultDaemon(),
			Model:  &model.Model{Defaults: model.NewDefaults()},
		},
		networks: make(map[string]*networkBlock),
		owner:    make(map[string]string),
	}

	// Networks and zones first so later sections can reference them
	// regardless of declaration order.
	var daemonSeen, defaultsSeen bool
	for _, it := range items {
		switch v := it.value.(type) {
		case *daemonBlock:
			if daemonSeen {
				b.fail("daemon", "declared more than once")
				continue
			}
			daemonSeen = true
			b.errs = append(b.errs, v.apply(&b.cfg.Daemon)...)
		case *defaultsBlock:
			if defaultsSeen {
				b.fail("defaults", "declared more than once")
				continue
			}
			defaultsSeen = true
			b.defaults(v)
		case *networkBlock:
			if _, dup := b.networks[v.Name]; dup {
				b.fail(fmt.Sprintf("network[%s]", v.Name), "duplicate network name")
				continue
			}
			b.networks[v.Name] = v
		}
	}
	for _, it := range items {
		if v, ok := it.value.(*zoneBlock); ok {
			b.zone(v)
		}
	}

	m := b.cfg.Model
	emitted := make(map[model.Section]bool)
	for _, it := range items {
		switch v := it.value.(type) {
		case *defaultsBlock:
			if !emitted[&m.Defaults] {
				emitted[&m.Defaults] = true
				m.Sections = append(m.Sections, &m.Defaults)
			}
		case *zoneBlock:
			if z := m.Zone(v.Name); z != nil && !emitted[z] {
				emitted[z] = true
				m.Sections = append(m.Sections, z)
			}
		case *forwardingBlock:
			b.forwarding(it.index, v)
		case *redirectBlock:
			b.redirect(it.index, v)
		case *ruleBlock:
			b.rule(it.index, v)
		case *includeBlock:
			inc := &model.Include{Path: v.Path}
			m.Includes = append(m.Includes, inc)
			m.Sections = append(m.Sections, inc)
		}
	}

	if b.errs.HasErrors() {
		return nil, b.errs
	}
	return b.cfg, nil
}

func (b *builder) defaults(v *defaultsBlock) {
	d := &b.cfg.Model.Defaults
	d.Input = model.ParsePolicy(v.Input)
	d.Output = model.ParsePolicy(v.Output)
	d.Forward = model.ParsePolicy(v.Forward)
	if v.SynFlood != nil {
		d.SynFlood = *v.SynFlood
	}
	if v.SynRate != nil {
		if *v.SynRate <= 0 {
			b.fail("defaults.syn_rate", "must be positive, got %d", *v.SynRate)
		} else {
			d.SynRate = *v.SynRate
		}
	}
	if v.SynBurst != nil {
		if *v.SynBurst <= 0 {
			b.fail("defaults.syn_burst", "must be positive, got %d", *v.SynBurst)
		} else {
			d.SynBurst = *v.SynBurst
		}
	}
	if v.DropInvalid != nil {
		d.DropInvalid = *v.DropInvalid
	}
}

func (b *builder) zone(v *zoneBlock) {
	field := fmt.Sprintf("zone[%s]", v.Name)
	m := b.cfg.Model
	if m.Zone(v.Name) != nil {
		b.fail(field, "duplicate zone name")
		return
	}
	if err := checkName(v.Name); err != nil {
		b.fail(field, "%v", err)
		return
	}
	z := &model.Zone{
		Name:    v.Name,
		Input:   model.ParsePolicy(v.Input),
		Output:  model.ParsePolicy(v.Output),
		Forward: model.ParsePolicy(v.Forward),
		Masq:    v.Masq,
		MTUFix:  v.MTUFix,
	}
	names := []string{v.Name}
	if v.Networks != nil {
		names = *v.Networks
	}
	for _, name := range names {
		if err := checkName(name); err != nil {
			b.fail(field+".networks", "%v", err)
			continue
		}
		if prev, ok := b.owner[name]; ok {
			b.fail(field+".networks", "network %s already belongs to zone %s", name, prev)
			continue
		}
		b.owner[name] = v.Name
		n := &model.Network{Name: name, Ifname: name, Zone: z}
		if nb, ok := b.networks[name]; ok {
			if nb.Ifname != "" {
				n.Ifname = nb.Ifname
			}
			n.IsAlias = nb.Alias
		}
		z.Networks = append(z.Networks, n)
	}
	m.Zones = append(m.Zones, z)
}

func (b *builder) lookupZone(field, name string) *model.Zone {
	if name == "" {
		b.fail(field, "zone name required")
		return nil
	}
	z := b.cfg.Model.Zone(name)
	if z == nil {
		b.fail(field, "unknown zone %s", name)
	}
	return z
}

func (b *builder) forwarding(i int, v *forwardingBlock) {
	field := fmt.Sprintf("forwarding[%d]", i)
	src := b.lookupZone(field+".src", v.Src)
	dest := b.lookupZone(field+".dest", v.Dest)
	if src == nil || dest == nil {
		return
	}
	f := &model.Forwarding{Src: src, Dest: dest, MTUFix: v.MTUFix, Masq: v.Masq}
	src.Forwardings = append(src.Forwardings, f)
	b.cfg.Model.Sections = append(b.cfg.Model.Sections, f)
}

func (b *builder) redirect(i int, v *redirectBlock) {
	field := fmt.Sprintf("redirect[%d]", i)
	src := b.lookupZone(field+".src", v.Src)

	r := &model.Redirect{Src: src}
	r.Proto = b.proto(field+".proto", v.Proto)
	r.SrcIP = b.cidr(field+".src_ip", v.SrcIP)
	r.SrcMAC = b.mac(field+".src_mac", v.SrcMAC)
	r.SrcPort = b.ports(field+".src_port", v.SrcPort)
	r.SrcDPort = b.ports(field+".src_dport", v.SrcDPort)
	r.DestIP = b.cidr(field+".dest_ip", v.DestIP)
	r.DestPort = b.ports(field+".dest_port", v.DestPort)
	if v.DestIP == "" {
		b.fail(field+".dest_ip", "destination address required")
	}
	if src == nil {
		return
	}
	for _, part := range model.SplitTCPUDP(r) {
		src.Redirects = append(src.Redirects, part)
		b.cfg.Model.Sections = append(b.cfg.Model.Sections, part)
	}
}

func (b *builder) rule(i int, v *ruleBlock) {
	field := fmt.Sprintf("rule[%d]", i)
	src := b.lookupZone(field+".src", v.Src)
	var dest *model.Zone
	if v.Dest != "" {
		dest = b.lookupZone(field+".dest", v.Dest)
	}

	r := &model.Rule{Src: src, Dest: dest, Target: model.ParsePolicy(v.Target)}
	r.Proto = b.proto(field+".proto", v.Proto)
	r.SrcIP = b.cidr(field+".src_ip", v.SrcIP)
	r.DestIP = b.cidr(field+".dest_ip", v.DestIP)
	r.SrcMAC = b.mac(field+".src_mac", v.SrcMAC)
	r.SrcPort = b.ports(field+".src_port", v.SrcPort)
	r.DestPort = b.ports(field+".dest_port", v.DestPort)
	if v.ICMPType != "" {
		t, err := model.ParseICMPType(v.ICMPType)
		if err != nil {
			b.fail(field+".icmp_type", "%v", err)
		} else {
			r.ICMP = &t
		}
	}
	if src == nil || (v.Dest != "" && dest == nil) {
		return
	}
	for _, part := range model.SplitRuleTCPUDP(r) {
		src.Rules = append(src.Rules, part)
		b.cfg.Model.Sections = append(b.cfg.Model.Sections, part)
	}
}

func (b *builder) proto(field, s string) model.Protocol {
	p, err := model.ParseProtocol(s)
	if err != nil {
		b.fail(field, "%v", err)
	}
	return p
}

func (b *builder) cidr(field, s string) *model.Cidr {
	if s == "" {
		return nil
	}
	c, err := model.ParseCidr(s)
	if err != nil {
		b.fail(field, "%v", err)
		return nil
	}
	return &c
}

func (b *builder) ports(field, s string) *model.PortRange {
	if s == "" {
		return nil
	}
	p, err := model.ParsePortRange(s)
	if err != nil {
		b.fail(field, "%v", err)
		return nil
	}
	return &p
}

func (b *builder) mac(field, s string) net.HardwareAddr {
	if s == "" {
		return nil
	}
	m, err := model.ParseMAC(s)
	if err != nil {
		b.fail(field, "%v", err)
		return nil
	}
	return m
}
