package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"grimm.is/zonefwd/internal/model"
	"grimm.is/zonefwd/internal/pfctl"
)

func TestMentionsNetwork(t *testing.T) {
	tests := []struct {
		comment string
		name    string
		want    bool
	}{
		{"forward:net=lan zone=lan", "lan", true},
		{"masq:net=lan", "lan", true},
		{"masq:net=lan2 zone=lan", "lan", false},
		{"masq:net=lan2 zone=lan net=lan", "lan", true},
		{"masq:net=lan\tzone=lan", "lan", true},
		{"zone=lan", "lan", false},
		{"", "lan", false},
		{"rule:net= zone=x", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MentionsNetwork(tt.comment, tt.name), "%q / %q", tt.comment, tt.name)
	}
}

func TestComment(t *testing.T) {
	assert.Equal(t, "redir:net=wan zone=wan", Comment(TagRedirect, "wan", "wan"))
}

func TestPolicyChain(t *testing.T) {
	assert.Equal(t, ChainAccept, policyChain(model.PolicyAccept))
	assert.Equal(t, ChainReject, policyChain(model.PolicyReject))
	assert.Equal(t, ChainDrop, policyChain(model.PolicyDrop))
	assert.Equal(t, ChainDrop, policyChain(model.PolicyUnspec))
}

func TestPortGating(t *testing.T) {
	z := &model.Zone{Name: "wan"}
	n := &model.Network{Name: "wan", Ifname: "eth1", Zone: z}
	p := &model.PortRange{Min: 1000, Max: 2000}
	icmp := &model.ICMPType{Type: 8, Code: -1}

	for _, proto := range []model.Protocol{
		{Kind: model.ProtoICMP},
		{Kind: model.ProtoAll},
		{Kind: model.ProtoCustom, Num: 47},
	} {
		r := &model.Rule{Src: z, Proto: proto, SrcPort: p, DestPort: p}
		e := ruleEntry(r, n, nil)
		for _, m := range e.Matches {
			assert.NotContains(t, []string{"tcp", "udp"}, m.Name, proto.String())
		}
	}

	r := &model.Rule{Src: z, Proto: model.Protocol{Kind: model.ProtoTCP}, ICMP: icmp, SrcPort: p}
	e := ruleEntry(r, n, nil)
	assert.Equal(t, `-i eth1 -p tcp -m tcp --sport 1000:2000 -m comment --comment "rule:net=wan zone=wan" -j handle_drop`, e.String())

	r = &model.Rule{Src: z, Proto: model.Protocol{Kind: model.ProtoICMP}, ICMP: &model.ICMPType{Type: 3, Code: 4}}
	e = ruleEntry(r, n, nil)
	assert.Contains(t, e.String(), "-m icmp --icmp-type 3/4")
}

func TestRuleEntryAddresses(t *testing.T) {
	z := &model.Zone{Name: "lan"}
	in := &model.Network{Name: "lan", Ifname: "eth0:1", IsAlias: true, Zone: z}
	src, _ := model.ParseCidr("192.168.1.77/24")
	wildcard, _ := model.ParseCidr("0.0.0.0/0")
	mac, _ := model.ParseMAC("00:11:22:33:44:55")
	r := &model.Rule{Src: z, SrcIP: &src, DestIP: &wildcard, SrcMAC: mac, Target: model.PolicyAccept}

	e := ruleEntry(r, in, nil)
	assert.Equal(t, "eth0", e.InIface)
	assert.Equal(t, "192.168.1.0/24", e.Src.String())
	assert.Nil(t, e.Dst)
	assert.Equal(t, []pfctl.Match{
		{Name: "mac", Args: []string{"--mac-source", "00:11:22:33:44:55"}},
		{Name: "comment", Args: []string{"--comment", "rule:net=lan zone=lan"}},
	}, e.Matches)
}
