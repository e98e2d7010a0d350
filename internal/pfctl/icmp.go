package pfctl

import "strings"

type icmpCode struct {
	typ  uint8
	code int
}

// icmpNames is the iptables ICMP type name table. Code -1 is any code.
var icmpNames = map[string]icmpCode{
	"any":                        {255, -1},
	"echo-reply":                 {0, 0},
	"pong":                       {0, 0},
	"destination-unreachable":    {3, -1},
	"network-unreachable":        {3, 0},
	"host-unreachable":           {3, 1},
	"protocol-unreachable":       {3, 2},
	"port-unreachable":           {3, 3},
	"fragmentation-needed":       {3, 4},
	"source-route-failed":        {3, 5},
	"network-unknown":            {3, 6},
	"host-unknown":               {3, 7},
	"network-prohibited":         {3, 9},
	"host-prohibited":            {3, 10},
	"TOS-network-unreachable":    {3, 11},
	"TOS-host-unreachable":       {3, 12},
	"communication-prohibited":   {3, 13},
	"host-precedence-violation":  {3, 14},
	"precedence-cutoff":          {3, 15},
	"source-quench":              {4, 0},
	"redirect":                   {5, -1},
	"network-redirect":           {5, 0},
	"host-redirect":              {5, 1},
	"TOS-network-redirect":       {5, 2},
	"TOS-host-redirect":          {5, 3},
	"echo-request":               {8, 0},
	"ping":                       {8, 0},
	"router-advertisement":       {9, 0},
	"router-solicitation":        {10, 0},
	"time-exceeded":              {11, -1},
	"ttl-exceeded":               {11, -1},
	"ttl-zero-during-transit":    {11, 0},
	"ttl-zero-during-reassembly": {11, 1},
	"parameter-problem":          {12, -1},
	"ip-header-bad":              {12, 0},
	"required-option-missing":    {12, 1},
	"timestamp-request":          {13, 0},
	"timestamp-reply":            {14, 0},
	"address-mask-request":       {17, 0},
	"address-mask-reply":         {18, 0},
}

// LookupICMPName resolves a symbolic ICMP type. The returned code is -1
// when the name covers every code of the type.
func LookupICMPName(name string) (typ uint8, code int, ok bool) {
	for k, v := range icmpNames {
		if strings.EqualFold(k, name) {
			return v.typ, v.code, true
		}
	}
	return 0, 0, false
}
