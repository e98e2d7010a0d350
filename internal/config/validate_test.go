package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadErrors(t *testing.T, src string) ValidationErrors {
	t.Helper()
	_, err := LoadHCL([]byte(src), "test.hcl")
	require.Error(t, err)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %T: %v", err, err)
	return verrs
}

func fields(errs ValidationErrors) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		fields []string
	}{
		{
			name:   "unknown forwarding zone",
			src:    `zone "lan" {}` + "\n" + `forwarding { src = "lan" dest = "dmz" }`,
			fields: []string{"forwarding[0].dest"},
		},
		{
			name:   "unknown rule dest",
			src:    `zone "wan" {}` + "\n" + `rule { src = "wan" dest = "lan" }`,
			fields: []string{"rule[0].dest"},
		},
		{
			name: "network in two zones",
			src: `
zone "lan" { networks = ["eth0"] }
zone "dmz" { networks = ["eth0"] }
`,
			fields: []string{"zone[dmz].networks"},
		},
		{
			name:   "duplicate zone",
			src:    `zone "lan" { networks = [] }` + "\n" + `zone "lan" { networks = [] }`,
			fields: []string{"zone[lan]"},
		},
		{
			name: "bad matchers",
			src: `
zone "wan" {}
redirect {
  src       = "wan"
  src_ip    = "10.0.0.300"
  src_dport = "http"
  dest_ip   = "10.0.0.2"
  src_mac   = "zz:00:00:00:00:00"
}
rule {
  src       = "wan"
  proto     = "sctp"
  icmp_type = "no-such-type"
}
`,
			fields: []string{
				"redirect[0].src_ip",
				"redirect[0].src_mac",
				"redirect[0].src_dport",
				"rule[0].proto",
				"rule[0].icmp_type",
			},
		},
		{
			name: "daemon values",
			src: `
daemon {
  poll_interval        = "soon"
  log_level            = "loud"
  audit_retention_days = -1
}
`,
			fields: []string{"daemon.poll_interval", "daemon.log_level", "daemon.audit_retention_days"},
		},
		{
			name:   "syn rate",
			src:    `defaults { syn_rate = 0 }`,
			fields: []string{"defaults.syn_rate"},
		},
		{
			name:   "network names",
			src:    `zone "lan" { networks = ["a b", "c=d", "eth0", ""] }`,
			fields: []string{"zone[lan].networks", "zone[lan].networks", "zone[lan].networks"},
		},
		{
			name:   "zone name",
			src:    `zone "my lan" { networks = ["eth0"] }`,
			fields: []string{"zone[my lan]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := loadErrors(t, tt.src)
			assert.ElementsMatch(t, tt.fields, fields(errs))
		})
	}
}

func TestCheckName(t *testing.T) {
	for _, name := range []string{"lan", "eth0", "eth0:1", "wan_6", "br-lan"} {
		assert.NoError(t, checkName(name), name)
	}
	for _, name := range []string{"", "a b", "a\tb", "net=a", `a"b`, "a\nb"} {
		assert.Error(t, checkName(name), name)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "one"},
		{Field: "b", Message: "two"},
	}
	assert.Equal(t, "a: one; b: two", errs.Error())
	assert.True(t, errs.HasErrors())
	assert.Equal(t, "", ValidationErrors(nil).Error())
}
