package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/zonefwd/internal/model"
)

const sampleHCL = `
daemon {
  socket        = "/tmp/zonefwd-test.sock"
  poll_interval = "2s"
  log_level     = "debug"
  audit_db      = ""
}

defaults {
  input   = "ACCEPT"
  output  = "accept"
  forward = "reject"
  syn_rate = 10
}

network "wan" {
  ifname = "eth1"
}

zone "lan" {
  networks = ["lan", "guest"]
  forward  = "accept"
  mtu_fix  = true
}

zone "wan" {
  input = "drop"
  masq  = true
}

forwarding {
  src  = "lan"
  dest = "wan"
}

redirect {
  src       = "wan"
  proto     = "tcpudp"
  src_dport = "8080"
  dest_ip   = "10.0.0.2"
  dest_port = "80"
}

rule {
  src       = "wan"
  proto     = "icmp"
  icmp_type = "echo-request"
  target    = "accept"
}

rule {
  src       = "wan"
  dest      = "lan"
  proto     = "tcp"
  dest_port = "22-20"
  target    = "reject"
}

include "/etc/zonefwd/custom.sh" {}
`

func TestLoadHCL(t *testing.T) {
	cfg, err := LoadHCL([]byte(sampleHCL), "test.hcl")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/zonefwd-test.sock", cfg.Daemon.Socket)
	assert.Equal(t, 2*time.Second, cfg.Daemon.PollInterval)
	assert.Equal(t, "debug", cfg.Daemon.LogLevel)
	assert.Empty(t, cfg.Daemon.AuditDB)
	assert.Equal(t, 30, cfg.Daemon.AuditRetentionDays)

	m := cfg.Model
	assert.Equal(t, model.PolicyAccept, m.Defaults.Input)
	assert.Equal(t, model.PolicyReject, m.Defaults.Forward)
	assert.True(t, m.Defaults.SynFlood)
	assert.Equal(t, 10, m.Defaults.SynRate)
	assert.Equal(t, 50, m.Defaults.SynBurst)
	assert.True(t, m.Defaults.DropInvalid)

	require.Len(t, m.Zones, 2)
	lan, wan := m.Zone("lan"), m.Zone("wan")
	require.NotNil(t, lan)
	require.NotNil(t, wan)

	require.Len(t, lan.Networks, 2)
	assert.Equal(t, "guest", lan.Networks[1].Ifname)
	assert.Same(t, lan, lan.Networks[0].Zone)
	assert.True(t, lan.MTUFix)

	require.Len(t, wan.Networks, 1)
	assert.Equal(t, "eth1", wan.Networks[0].Ifname)
	assert.Equal(t, model.PolicyDrop, wan.Input)
	assert.Equal(t, model.PolicyUnspec, wan.Forward)
	assert.True(t, wan.Masq)

	require.Len(t, lan.Forwardings, 1)
	assert.Same(t, wan, lan.Forwardings[0].Dest)

	require.Len(t, wan.Redirects, 2)
	assert.Equal(t, model.ProtoTCP, wan.Redirects[0].Proto.Kind)
	assert.Equal(t, model.ProtoUDP, wan.Redirects[1].Proto.Kind)
	assert.False(t, wan.Redirects[0].Clone)
	assert.True(t, wan.Redirects[1].Clone)
	assert.Equal(t, "10.0.0.2/32", wan.Redirects[1].DestIP.String())
	assert.NotSame(t, wan.Redirects[0].DestIP, wan.Redirects[1].DestIP)

	require.Len(t, wan.Rules, 2)
	require.NotNil(t, wan.Rules[0].ICMP)
	assert.Equal(t, "echo-request", wan.Rules[0].ICMP.String())
	assert.Nil(t, wan.Rules[0].Dest)
	assert.Same(t, lan, wan.Rules[1].Dest)
	assert.Equal(t, model.PortRange{Min: 20, Max: 22}, *wan.Rules[1].DestPort)
	assert.Equal(t, model.PolicyReject, wan.Rules[1].Target)

	require.Len(t, m.Includes, 1)
	assert.Equal(t, "/etc/zonefwd/custom.sh", m.Includes[0].Path)

	// defaults, lan, wan, forwarding, 2 redirects, 2 rules, include
	require.Len(t, m.Sections, 9)
	assert.IsType(t, &model.Defaults{}, m.Sections[0])
	assert.IsType(t, &model.Forwarding{}, m.Sections[3])
	assert.IsType(t, &model.Include{}, m.Sections[8])
}

func TestLoadHCL_Defaults(t *testing.T) {
	cfg, err := LoadHCL([]byte(`zone "lan" {}`), "min.hcl")
	require.NoError(t, err)

	assert.Equal(t, DefaultDaemon(), cfg.Daemon)
	assert.Equal(t, model.NewDefaults(), cfg.Model.Defaults)
	require.Len(t, cfg.Model.Zones, 1)
	require.Len(t, cfg.Model.Zones[0].Networks, 1)
	assert.Equal(t, "lan", cfg.Model.Zones[0].Networks[0].Ifname)
	assert.Len(t, cfg.Model.Sections, 1)
}

func TestLoadHCL_Env(t *testing.T) {
	t.Setenv("ZONEFWD_TEST_WAN", "ppp0")

	cfg, err := LoadHCL([]byte(`
network "wan" {
  ifname = env.ZONEFWD_TEST_WAN
}
zone "wan" {}
`), "env.hcl")
	require.NoError(t, err)
	assert.Equal(t, "ppp0", cfg.Model.Network("wan").Ifname)
}

func TestLoadJSON(t *testing.T) {
	data := []byte(`{
  "zone": {
    "lan": {"forward": "accept"},
    "wan": {"networks": ["wan", "wan6"]}
  },
  "forwarding": [{"src": "lan", "dest": "wan", "masq": true}]
}`)
	cfg, err := LoadJSON(data, "test.json")
	require.NoError(t, err)

	lan := cfg.Model.Zone("lan")
	require.NotNil(t, lan)
	assert.Equal(t, model.PolicyAccept, lan.Forward)
	require.Len(t, lan.Forwardings, 1)
	assert.True(t, lan.Forwardings[0].Masq)
	assert.Len(t, cfg.Model.Zone("wan").Networks, 2)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	hclPath := filepath.Join(dir, "zonefwd.hcl")
	require.NoError(t, os.WriteFile(hclPath, []byte(`zone "lan" {}`), 0644))
	cfg, err := LoadFile(hclPath)
	require.NoError(t, err)
	assert.NotNil(t, cfg.Model.Zone("lan"))

	jsonPath := filepath.Join(dir, "zonefwd.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"zone": {"wan": {}}}`), 0644))
	cfg, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.NotNil(t, cfg.Model.Zone("wan"))

	_, err = LoadFile(filepath.Join(dir, "missing.hcl"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadHCL_SyntaxErrors(t *testing.T) {
	_, err := LoadHCL([]byte(`zone "lan" {`), "bad.hcl")
	assert.ErrorContains(t, err, "HCL parse error")

	_, err = LoadHCL([]byte(`bogus = 1`), "bad.hcl")
	assert.ErrorContains(t, err, "HCL decode error")

	_, err = LoadHCL([]byte(`zone "lan" { colour = "red" }`), "bad.hcl")
	assert.ErrorContains(t, err, "HCL decode error")
}

func TestFormat(t *testing.T) {
	out := Format([]byte("zone \"lan\" {\nmasq=true\n}\n"))
	assert.Equal(t, "zone \"lan\" {\n  masq = true\n}\n", string(out))
}
