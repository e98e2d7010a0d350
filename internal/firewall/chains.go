package firewall

import (
	"fmt"
	"strings"
)

// Filter table chains.
const (
	ChainMSSFix      = "mssfix"
	ChainZones       = "zones"
	ChainRules       = "rules"
	ChainFwdRules    = "forward_rules"
	ChainRedirects   = "redirects"
	ChainForwardings = "forwardings"
	ChainPolicies    = "policies"
	ChainSynFlood    = "syn_flood"

	ChainAccept = "handle_accept"
	ChainDrop   = "handle_drop"
	ChainReject = "handle_reject"
)

// NAT table chains. ChainRedirects exists in both tables.
const (
	ChainZoneMasq = "zonemasq"
	ChainLoopback = "loopback"
)

// Comment tags.
const (
	TagMasq     = "masq"
	TagMSSFix   = "mssfix"
	TagZone     = "zone"
	TagForward  = "forward"
	TagRedirect = "redir"
	TagRule     = "rule"
	TagPolicy   = "policy"
)

var (
	filterContainers = []string{ChainMSSFix, ChainZones, ChainRules, ChainFwdRules, ChainRedirects, ChainForwardings, ChainPolicies}
	natContainers    = []string{ChainZoneMasq, ChainRedirects, ChainLoopback}
)

// Comment formats the tag comment of a synthesized entry.
func Comment(tag, network, zone string) string {
	return fmt.Sprintf("%s:net=%s zone=%s", tag, network, zone)
}

// MentionsNetwork reports whether comment carries the token net=<name>
// followed by whitespace or the end of the string.
func MentionsNetwork(comment, name string) bool {
	if name == "" {
		return false
	}
	tok := "net=" + name
	for off := 0; off < len(comment); {
		i := strings.Index(comment[off:], tok)
		if i < 0 {
			return false
		}
		end := off + i + len(tok)
		if end == len(comment) || comment[end] == ' ' || comment[end] == '\t' {
			return true
		}
		off += i + 1
	}
	return false
}
