package firewall

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/zonefwd/internal/logging"
	"grimm.is/zonefwd/internal/model"
	"grimm.is/zonefwd/internal/pfctl"
)

func cidr(t *testing.T, s string) model.Cidr {
	t.Helper()
	c, err := model.ParseCidr(s)
	require.NoError(t, err)
	return c
}

func ports(t *testing.T, s string) *model.PortRange {
	t.Helper()
	p, err := model.ParsePortRange(s)
	require.NoError(t, err)
	return &p
}

func addNetwork(z *model.Zone, name string) *model.Network {
	n := &model.Network{Name: name, Ifname: name, Zone: z}
	z.Networks = append(z.Networks, n)
	return n
}

// scenario is lan(eth0 addressed) forwarding to wan(eth1 not addressed),
// everything else dropped.
func scenario(t *testing.T) (*model.Model, *model.Network, *model.Network) {
	lan := &model.Zone{Name: "lan", Forward: model.PolicyAccept}
	wan := &model.Zone{Name: "wan"}
	eth0 := addNetwork(lan, "eth0")
	eth0.Addr = cidr(t, "10.0.0.1/24")
	eth1 := addNetwork(wan, "eth1")
	lan.Forwardings = []*model.Forwarding{{Src: lan, Dest: wan}}

	d := model.NewDefaults()
	d.Input, d.Output, d.Forward = model.PolicyDrop, model.PolicyDrop, model.PolicyDrop
	return &model.Model{Defaults: d, Zones: []*model.Zone{lan, wan}}, eth0, eth1
}

func newSynth() (*Synthesizer, *pfctl.MemBackend) {
	mem := pfctl.NewMemBackend()
	return New(mem, logging.Discard(), nil), mem
}

func entries(t *testing.T, mem *pfctl.MemBackend, table, chain string) []pfctl.Entry {
	t.Helper()
	c := mem.Snapshot(table).Chain(chain)
	require.NotNil(t, c, "chain %s/%s", table, chain)
	return c.Entries
}

func counts(mem *pfctl.MemBackend) map[string]int {
	out := make(map[string]int)
	for _, table := range []string{pfctl.TableFilter, pfctl.TableNAT} {
		for _, c := range mem.Snapshot(table).Chains {
			out[table+"/"+c.Name] = len(c.Entries)
		}
	}
	return out
}

func build(t *testing.T, s *Synthesizer, m *model.Model) *State {
	t.Helper()
	st := NewState()
	require.NoError(t, s.ClearRuleset(st))
	require.NoError(t, s.BuildDefaults(m.Defaults))
	return st
}

func TestBuildDefaults(t *testing.T) {
	s, mem := newSynth()
	d := model.NewDefaults()
	d.Input, d.Output, d.Forward = model.PolicyAccept, model.PolicyAccept, model.PolicyReject
	st := NewState()
	require.NoError(t, s.ClearRuleset(st))
	require.NoError(t, s.BuildDefaults(d))

	want := `*filter
:INPUT ACCEPT
:FORWARD DROP
:OUTPUT ACCEPT
:handle_accept -
:handle_drop -
:handle_reject -
:mssfix -
:zones -
:rules -
:forward_rules -
:redirects -
:forwardings -
:policies -
:syn_flood -
-A INPUT -m conntrack --ctstate INVALID -j DROP
-A INPUT -m conntrack --ctstate RELATED,ESTABLISHED -j ACCEPT
-A INPUT -i lo -j ACCEPT
-A INPUT -p tcp -m tcp --syn -j syn_flood
-A INPUT -j rules
-A INPUT -j policies
-A FORWARD -m conntrack --ctstate INVALID -j DROP
-A FORWARD -m conntrack --ctstate RELATED,ESTABLISHED -j ACCEPT
-A FORWARD -j mssfix
-A FORWARD -j forward_rules
-A FORWARD -j redirects
-A FORWARD -j zones
-A FORWARD -j forwardings
-A OUTPUT -m conntrack --ctstate INVALID -j DROP
-A OUTPUT -m conntrack --ctstate RELATED,ESTABLISHED -j ACCEPT
-A OUTPUT -o lo -j ACCEPT
-A OUTPUT -j policies
-A handle_accept -j ACCEPT
-A handle_drop -j DROP
-A handle_reject -p tcp -j REJECT --reject-with tcp-reset
-A handle_reject -j REJECT --reject-with icmp-port-unreachable
-A syn_flood -p tcp -m tcp --syn -m limit --limit 25/second --limit-burst 50 -j RETURN
-A syn_flood -j DROP
COMMIT
*nat
:PREROUTING ACCEPT
:INPUT ACCEPT
:OUTPUT ACCEPT
:POSTROUTING ACCEPT
:zonemasq -
:redirects -
:loopback -
-A PREROUTING -j redirects
-A POSTROUTING -j zonemasq
-A POSTROUTING -j loopback
COMMIT
`
	assert.Equal(t, want, mem.Dump())
}

func TestBuildDefaults_Options(t *testing.T) {
	s, mem := newSynth()
	d := model.NewDefaults()
	d.SynFlood = false
	d.DropInvalid = false
	build(t, s, &model.Model{Defaults: d})

	filter := mem.Snapshot(pfctl.TableFilter)
	assert.Nil(t, filter.Chain(ChainSynFlood))
	for _, e := range filter.Chain(pfctl.ChainInput).Entries {
		assert.NotContains(t, e.String(), "INVALID")
		assert.NotEqual(t, ChainSynFlood, e.Target.Name)
	}
	// Unspecified defaults fail closed.
	assert.Equal(t, pfctl.PolicyDrop, filter.Chain(pfctl.ChainInput).Policy)
}

func TestClearRuleset(t *testing.T) {
	s, mem := newSynth()
	m, eth0, _ := scenario(t)
	st := build(t, s, m)
	require.NoError(t, s.AddInterface(m, st, eth0))
	require.True(t, st.Installed("eth0"))

	require.NoError(t, s.ClearRuleset(st))
	assert.False(t, st.Installed("eth0"))
	assert.Empty(t, st.Networks())

	fresh := pfctl.NewMemBackend()
	assert.Equal(t, fresh.Dump(), mem.Dump())
}

func TestEndToEndScenario(t *testing.T) {
	s, mem := newSynth()
	m, eth0, eth1 := scenario(t)
	st := build(t, s, m)

	require.NoError(t, s.AddInterface(m, st, eth0))
	assert.Empty(t, entries(t, mem, pfctl.TableFilter, ChainZones))
	assert.Empty(t, entries(t, mem, pfctl.TableFilter, ChainForwardings))

	// eth1 without an address is a no-op.
	require.NoError(t, s.AddInterface(m, st, eth1))
	assert.False(t, st.Installed("eth1"))

	eth1.Addr = cidr(t, "192.0.2.1/30")
	require.NoError(t, s.AddInterface(m, st, eth1))

	fwd := entries(t, mem, pfctl.TableFilter, ChainForwardings)
	require.Len(t, fwd, 1)
	assert.Equal(t, "eth0", fwd[0].InIface)
	assert.Equal(t, "eth1", fwd[0].OutIface)
	assert.Equal(t, ChainAccept, fwd[0].Target.Name)
	assert.Equal(t, "forward:net=eth0 zone=lan", fwd[0].Comment())

	// The pair entry belongs to both endpoints.
	require.NoError(t, s.RemoveInterface(st, eth1))
	assert.Empty(t, entries(t, mem, pfctl.TableFilter, ChainForwardings))
	assert.True(t, st.Installed("eth0"))
	for _, r := range st.Refs("eth0") {
		assert.NotEqual(t, ChainForwardings, r.Chain)
	}
}

func TestIntraZone(t *testing.T) {
	s, mem := newSynth()
	lan := &model.Zone{Name: "lan", Forward: model.PolicyReject}
	a := addNetwork(lan, "lan1")
	b := addNetwork(lan, "lan2")
	a.Addr = cidr(t, "10.0.0.1/24")
	b.Addr = cidr(t, "10.0.1.1/24")
	m := &model.Model{Defaults: model.NewDefaults(), Zones: []*model.Zone{lan}}
	st := build(t, s, m)

	require.NoError(t, s.AddInterface(m, st, a))
	assert.Empty(t, entries(t, mem, pfctl.TableFilter, ChainZones))

	require.NoError(t, s.AddInterface(m, st, b))
	zones := entries(t, mem, pfctl.TableFilter, ChainZones)
	require.Len(t, zones, 2)
	assert.Equal(t, `-i lan2 -o lan1 -m comment --comment "zone:net=lan2 zone=lan" -j handle_reject`, zones[0].String())
	assert.Equal(t, `-i lan1 -o lan2 -m comment --comment "zone:net=lan1 zone=lan" -j handle_reject`, zones[1].String())

	require.NoError(t, s.RemoveInterface(st, a))
	assert.Empty(t, entries(t, mem, pfctl.TableFilter, ChainZones))
	assert.Empty(t, st.Refs("lan1"))
	for _, r := range st.Refs("lan2") {
		assert.NotEqual(t, ChainZones, r.Chain)
	}
}

func TestPolicyFallback(t *testing.T) {
	s, mem := newSynth()
	z := &model.Zone{Name: "dmz"}
	a := addNetwork(z, "dmz1")
	b := addNetwork(z, "dmz2")
	a.Addr = cidr(t, "172.16.0.1/24")
	b.Addr = cidr(t, "172.16.1.1/24")
	m := &model.Model{Defaults: model.NewDefaults(), Zones: []*model.Zone{z}}
	st := build(t, s, m)

	require.NoError(t, s.AddInterface(m, st, a))
	require.NoError(t, s.AddInterface(m, st, b))

	for _, chain := range []string{ChainZones, ChainPolicies} {
		list := entries(t, mem, pfctl.TableFilter, chain)
		require.NotEmpty(t, list)
		for _, e := range list {
			assert.Equal(t, ChainDrop, e.Target.Name, e.String())
		}
	}
}

func TestZoneMasqAndMSSFix(t *testing.T) {
	s, mem := newSynth()
	wan := &model.Zone{Name: "wan", Masq: true, MTUFix: true, Input: model.PolicyReject, Output: model.PolicyAccept}
	n := addNetwork(wan, "wan")
	n.Ifname = "eth1"
	n.Addr = cidr(t, "192.0.2.2/30")
	m := &model.Model{Defaults: model.NewDefaults(), Zones: []*model.Zone{wan}}
	st := build(t, s, m)
	require.NoError(t, s.AddInterface(m, st, n))

	masq := entries(t, mem, pfctl.TableNAT, ChainZoneMasq)
	require.Len(t, masq, 1)
	assert.Equal(t, `-o eth1 -m comment --comment "masq:net=wan zone=wan" -j MASQUERADE`, masq[0].String())

	mss := entries(t, mem, pfctl.TableFilter, ChainMSSFix)
	require.Len(t, mss, 1)
	assert.Equal(t, `-o eth1 -p tcp -m tcp --tcp-flags SYN,RST SYN -m comment --comment "mssfix:net=wan zone=wan" -j TCPMSS --clamp-mss-to-pmtu`, mss[0].String())

	pol := entries(t, mem, pfctl.TableFilter, ChainPolicies)
	require.Len(t, pol, 2)
	assert.Equal(t, `-i eth1 -m comment --comment "policy:net=wan zone=wan" -j handle_reject`, pol[0].String())
	assert.Equal(t, `-o eth1 -m comment --comment "policy:net=wan zone=wan" -j handle_accept`, pol[1].String())
}

func TestForwardingMasqAndMSSFix(t *testing.T) {
	s, mem := newSynth()
	m, eth0, eth1 := scenario(t)
	f := m.Zone("lan").Forwardings[0]
	f.Masq = true
	f.MTUFix = true
	eth1.Addr = cidr(t, "192.0.2.1/30")
	st := build(t, s, m)

	require.NoError(t, s.AddInterface(m, st, eth1))
	require.NoError(t, s.AddInterface(m, st, eth0))

	masq := entries(t, mem, pfctl.TableNAT, ChainZoneMasq)
	require.Len(t, masq, 1)
	assert.Equal(t, `-s 10.0.0.0/24 -o eth1 -m comment --comment "masq:net=eth0 zone=lan" -j MASQUERADE`, masq[0].String())

	mss := entries(t, mem, pfctl.TableFilter, ChainMSSFix)
	require.Len(t, mss, 1)
	assert.Equal(t, "eth0", mss[0].InIface)
	assert.Equal(t, "eth1", mss[0].OutIface)

	require.NoError(t, s.RemoveInterface(st, eth1))
	assert.Empty(t, entries(t, mem, pfctl.TableNAT, ChainZoneMasq))
	assert.Empty(t, entries(t, mem, pfctl.TableFilter, ChainMSSFix))
}

func TestRedirects(t *testing.T) {
	s, mem := newSynth()
	wan := &model.Zone{Name: "wan"}
	n := addNetwork(wan, "wan")
	n.Ifname = "eth1"
	n.Addr = cidr(t, "192.0.2.2/30")
	dest := cidr(t, "10.0.0.2")

	open := &model.Redirect{
		Src:      wan,
		Proto:    model.Protocol{Kind: model.ProtoTCP},
		SrcDPort: ports(t, "8080"),
		DestIP:   &dest,
		DestPort: ports(t, "80"),
	}
	src := cidr(t, "198.51.100.0/24")
	restricted := &model.Redirect{
		Src:      wan,
		Proto:    model.Protocol{Kind: model.ProtoUDP},
		SrcIP:    &src,
		SrcDPort: ports(t, "5000-5010"),
		DestIP:   &dest,
	}
	wan.Redirects = []*model.Redirect{open, restricted}
	m := &model.Model{Defaults: model.NewDefaults(), Zones: []*model.Zone{wan}}
	st := build(t, s, m)
	require.NoError(t, s.AddInterface(m, st, n))

	dnat := entries(t, mem, pfctl.TableNAT, ChainRedirects)
	require.Len(t, dnat, 2)
	assert.Equal(t, `-i eth1 -p tcp -m tcp --dport 8080 -m comment --comment "redir:net=wan zone=wan" -j DNAT --to-destination 10.0.0.2:80`, dnat[0].String())
	assert.Equal(t, `-s 198.51.100.0/24 -i eth1 -p udp -m udp --dport 5000:5010 -m comment --comment "redir:net=wan zone=wan" -j DNAT --to-destination 10.0.0.2`, dnat[1].String())

	accept := entries(t, mem, pfctl.TableFilter, ChainRedirects)
	require.Len(t, accept, 2)
	assert.Equal(t, `-d 10.0.0.2/32 -i eth1 -p tcp -m tcp --dport 80 -m comment --comment "redir:net=wan zone=wan" -j handle_accept`, accept[0].String())
	assert.Equal(t, `-s 198.51.100.0/24 -d 10.0.0.2/32 -i eth1 -p udp -m udp --dport 5000:5010 -m comment --comment "redir:net=wan zone=wan" -j handle_accept`, accept[1].String())

	// Only the redirect without a source restriction gets a loopback rule.
	loop := entries(t, mem, pfctl.TableNAT, ChainLoopback)
	require.Len(t, loop, 1)
	assert.Equal(t, `-d 10.0.0.2/32 ! -i eth1 -p tcp -m tcp --dport 80 -m comment --comment "redir:net=wan zone=wan" -j MASQUERADE`, loop[0].String())
}

func TestClonePairing(t *testing.T) {
	s, mem := newSynth()
	wan := &model.Zone{Name: "wan"}
	n := addNetwork(wan, "wan")
	n.Addr = cidr(t, "192.0.2.2/30")
	dest := cidr(t, "10.0.0.2")
	r := &model.Redirect{
		Src:      wan,
		Proto:    model.Protocol{Kind: model.ProtoTCPUDP},
		SrcDPort: ports(t, "53"),
		DestIP:   &dest,
	}
	wan.Redirects = model.SplitTCPUDP(r)
	rule := &model.Rule{Src: wan, Proto: model.Protocol{Kind: model.ProtoTCPUDP}, DestPort: ports(t, "22"), Target: model.PolicyAccept}
	wan.Rules = model.SplitRuleTCPUDP(rule)
	m := &model.Model{Defaults: model.NewDefaults(), Zones: []*model.Zone{wan}}
	st := build(t, s, m)
	before := counts(mem)

	require.NoError(t, s.AddInterface(m, st, n))

	check := func(list []pfctl.Entry) {
		require.Len(t, list, 2)
		assert.Equal(t, uint8(6), list[0].Proto)
		assert.Equal(t, uint8(17), list[1].Proto)
		a, b := list[0], list[1]
		a.Proto, b.Proto = 0, 0
		require.Len(t, a.Matches, len(b.Matches))
		for i := range a.Matches {
			if a.Matches[i].Name == "tcp" {
				assert.Equal(t, "udp", b.Matches[i].Name)
				assert.Equal(t, a.Matches[i].Args, b.Matches[i].Args)
				continue
			}
			assert.Equal(t, a.Matches[i], b.Matches[i])
		}
		assert.Equal(t, a.Target, b.Target)
	}
	check(entries(t, mem, pfctl.TableNAT, ChainRedirects))
	check(entries(t, mem, pfctl.TableFilter, ChainRedirects))
	check(entries(t, mem, pfctl.TableNAT, ChainLoopback))
	check(entries(t, mem, pfctl.TableFilter, ChainRules))

	require.NoError(t, s.RemoveInterface(st, n))
	assert.Equal(t, before, counts(mem))
}

func TestRules(t *testing.T) {
	s, mem := newSynth()
	m, eth0, eth1 := scenario(t)
	lan, wan := m.Zone("lan"), m.Zone("wan")
	eth1.Addr = cidr(t, "192.0.2.1/30")
	icmp, err := model.ParseICMPType("echo-request")
	require.NoError(t, err)
	wan.Rules = []*model.Rule{
		{Src: wan, Proto: model.Protocol{Kind: model.ProtoICMP}, ICMP: &icmp, Target: model.PolicyAccept},
		{Src: wan, Dest: lan, Proto: model.Protocol{Kind: model.ProtoTCP}, DestPort: ports(t, "22"), Target: model.PolicyReject},
	}
	st := build(t, s, m)

	require.NoError(t, s.AddInterface(m, st, eth1))
	rules := entries(t, mem, pfctl.TableFilter, ChainRules)
	require.Len(t, rules, 1)
	assert.Equal(t, `-i eth1 -p icmp -m icmp --icmp-type echo-request -m comment --comment "rule:net=eth1 zone=wan" -j handle_accept`, rules[0].String())
	assert.Empty(t, entries(t, mem, pfctl.TableFilter, ChainFwdRules))

	// The destination-zone rule appears once lan is installed.
	require.NoError(t, s.AddInterface(m, st, eth0))
	assert.Len(t, entries(t, mem, pfctl.TableFilter, ChainRules), 1)
	fwd := entries(t, mem, pfctl.TableFilter, ChainFwdRules)
	require.Len(t, fwd, 1)
	assert.Equal(t, `-i eth1 -o eth0 -p tcp -m tcp --dport 22 -m comment --comment "rule:net=eth1 zone=wan" -j handle_reject`, fwd[0].String())

	require.NoError(t, s.RemoveInterface(st, eth0))
	assert.Len(t, entries(t, mem, pfctl.TableFilter, ChainRules), 1)
	assert.Empty(t, entries(t, mem, pfctl.TableFilter, ChainFwdRules))
}

// Input rules are reached only from INPUT and carry no destination
// address-type guard, so broadcast traffic such as DHCP requests matches.
func TestInputRules_BroadcastDestination(t *testing.T) {
	s, mem := newSynth()
	m, eth0, _ := scenario(t)
	lan := m.Zone("lan")
	lan.Rules = []*model.Rule{
		{Src: lan, Proto: model.Protocol{Kind: model.ProtoUDP}, DestPort: ports(t, "67"), Target: model.PolicyAccept},
	}
	st := build(t, s, m)
	require.NoError(t, s.AddInterface(m, st, eth0))

	rules := entries(t, mem, pfctl.TableFilter, ChainRules)
	require.Len(t, rules, 1)
	assert.Equal(t, `-i eth0 -p udp -m udp --dport 67 -m comment --comment "rule:net=eth0 zone=lan" -j handle_accept`, rules[0].String())
	assert.Nil(t, rules[0].Dst)

	jumps := func(chain string) []string {
		var out []string
		for _, e := range entries(t, mem, pfctl.TableFilter, chain) {
			out = append(out, e.Target.Name)
		}
		return out
	}
	assert.Contains(t, jumps(pfctl.ChainInput), ChainRules)
	assert.NotContains(t, jumps(pfctl.ChainForward), ChainRules)
	assert.Contains(t, jumps(pfctl.ChainForward), ChainFwdRules)
	assert.NotContains(t, jumps(pfctl.ChainInput), ChainFwdRules)
}

func TestRoundTrip(t *testing.T) {
	s, mem := newSynth()
	m, eth0, eth1 := scenario(t)
	lan, wan := m.Zone("lan"), m.Zone("wan")
	lan.Masq, lan.MTUFix = true, true
	f := lan.Forwardings[0]
	f.Masq, f.MTUFix = true, true
	dest := cidr(t, "10.0.0.5")
	wan.Redirects = []*model.Redirect{{Src: wan, Proto: model.Protocol{Kind: model.ProtoTCP}, SrcDPort: ports(t, "443"), DestIP: &dest}}
	wan.Rules = []*model.Rule{
		{Src: wan, Dest: lan, Target: model.PolicyAccept},
		{Src: wan, Proto: model.Protocol{Kind: model.ProtoUDP}, DestPort: ports(t, "68"), Target: model.PolicyAccept},
	}
	eth1.Addr = cidr(t, "192.0.2.1/30")
	st := build(t, s, m)

	empty := counts(mem)
	require.NoError(t, s.AddInterface(m, st, eth0))
	withLan := counts(mem)

	require.NoError(t, s.AddInterface(m, st, eth1))
	require.NoError(t, s.RemoveInterface(st, eth1))
	assert.Equal(t, withLan, counts(mem))

	require.NoError(t, s.RemoveInterface(st, eth0))
	assert.Equal(t, empty, counts(mem))
}

func TestIdempotentRemoval(t *testing.T) {
	s, mem := newSynth()
	m, eth0, _ := scenario(t)
	st := build(t, s, m)
	require.NoError(t, s.AddInterface(m, st, eth0))

	require.NoError(t, s.RemoveInterface(st, eth0))
	first := mem.Dump()
	commits := mem.Commits(pfctl.TableFilter)

	require.NoError(t, s.RemoveInterface(st, eth0))
	assert.Equal(t, first, mem.Dump())
	assert.Equal(t, commits, mem.Commits(pfctl.TableFilter))
}

func TestAddInterface_Idempotent(t *testing.T) {
	s, mem := newSynth()
	m, eth0, _ := scenario(t)
	st := build(t, s, m)
	require.NoError(t, s.AddInterface(m, st, eth0))
	once := mem.Dump()
	require.NoError(t, s.AddInterface(m, st, eth0))
	assert.Equal(t, once, mem.Dump())
}

func TestRemoveInterface_SweepsUntracked(t *testing.T) {
	s, mem := newSynth()
	m, _, _ := scenario(t)
	build(t, s, m)

	filter, err := mem.OpenTable(pfctl.TableFilter)
	require.NoError(t, err)
	for _, c := range []string{
		Comment(TagRule, "eth0", "lan"),
		Comment(TagRule, "eth00", "lan"),
		Comment(TagRule, "eth0", "lan"),
	} {
		e := pfctl.Entry{InIface: "eth0", Target: pfctl.Target{Name: ChainAccept}}
		e.SetComment(c)
		require.NoError(t, filter.AppendEntry(ChainRules, e))
	}
	require.NoError(t, filter.Commit())

	require.NoError(t, s.RemoveInterface(NewState(), &model.Network{Name: "eth0", Ifname: "eth0"}))
	left := entries(t, mem, pfctl.TableFilter, ChainRules)
	require.Len(t, left, 1)
	assert.Equal(t, "rule:net=eth00 zone=lan", left[0].Comment())
}

func TestChangeInterface(t *testing.T) {
	s, mem := newSynth()
	m, eth0, eth1 := scenario(t)
	m.Zone("lan").Forwardings[0].Masq = true
	eth1.Addr = cidr(t, "192.0.2.1/30")
	st := build(t, s, m)
	require.NoError(t, s.AddInterface(m, st, eth0))
	require.NoError(t, s.AddInterface(m, st, eth1))

	eth0.Addr = cidr(t, "10.1.0.1/16")
	require.NoError(t, s.ChangeInterface(m, st, eth0))

	masq := entries(t, mem, pfctl.TableNAT, ChainZoneMasq)
	require.Len(t, masq, 1)
	assert.Equal(t, "10.1.0.0/16", masq[0].Src.String())
	assert.Len(t, entries(t, mem, pfctl.TableFilter, ChainForwardings), 1)
}

func TestCommitFailure(t *testing.T) {
	s, mem := newSynth()
	m, eth0, _ := scenario(t)
	st := build(t, s, m)

	boom := errors.New("netlink: device busy")
	mem.FailNextCommit(pfctl.TableNAT, boom)
	err := s.AddInterface(m, st, eth0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommit)
	assert.ErrorIs(t, err, boom)
	assert.False(t, st.Installed("eth0"))
}
