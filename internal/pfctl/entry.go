package pfctl

import (
	"net"
	"strconv"
	"strings"
)

// Built-in targets. Any other target name is a jump to a chain of that name.
const (
	TargetAccept     = "ACCEPT"
	TargetDrop       = "DROP"
	TargetReturn     = "RETURN"
	TargetReject     = "REJECT"
	TargetMasquerade = "MASQUERADE"
	TargetDNAT       = "DNAT"
	TargetTCPMSS     = "TCPMSS"
)

var extensionTargets = map[string]bool{
	TargetAccept:     true,
	TargetDrop:       true,
	TargetReturn:     true,
	TargetReject:     true,
	TargetMasquerade: true,
	TargetDNAT:       true,
	TargetTCPMSS:     true,
}

// IsJump reports whether a target name refers to a user chain.
func IsJump(target string) bool {
	return target != "" && !extensionTargets[target]
}

// Match is a named matcher with its option strings, e.g.
// {Name: "tcp", Args: ["--dport", "80:90"]}.
type Match struct {
	Name string
	Args []string
}

// Target is the verdict of an entry, optionally with options such as
// {Name: "REJECT", Args: ["--reject-with", "tcp-reset"]}.
type Target struct {
	Name string
	Args []string
}

// Entry is one rule in a chain.
type Entry struct {
	InIface  string
	InInvert bool
	OutIface string
	Src      *net.IPNet
	Dst      *net.IPNet
	// Proto is the IP protocol number, 0 for any.
	Proto   uint8
	Matches []Match
	Target  Target

	// native holds the backend's own encoding of entries that were read
	// back from the kernel and never rebuilt.
	native any
}

// AddMatch appends a matcher.
func (e *Entry) AddMatch(name string, args ...string) {
	e.Matches = append(e.Matches, Match{Name: name, Args: args})
}

// SetComment replaces any comment matcher with text.
func (e *Entry) SetComment(text string) {
	for i, m := range e.Matches {
		if m.Name == "comment" {
			e.Matches[i].Args = []string{"--comment", text}
			return
		}
	}
	e.AddMatch("comment", "--comment", text)
}

// Comment returns the text of the comment matcher, if any.
func (e Entry) Comment() string {
	for _, m := range e.Matches {
		if m.Name == "comment" {
			if v, ok := m.arg("--comment"); ok {
				return v
			}
		}
	}
	return ""
}

// arg returns the value following flag.
func (m Match) arg(flag string) (string, bool) {
	for i := 0; i+1 < len(m.Args); i++ {
		if m.Args[i] == flag {
			return m.Args[i+1], true
		}
	}
	return "", false
}

func (m Match) has(flag string) bool {
	for _, a := range m.Args {
		if a == flag {
			return true
		}
	}
	return false
}

// ProtoName renders a protocol number the way iptables-save does.
func ProtoName(p uint8) string {
	switch p {
	case 1:
		return "icmp"
	case 6:
		return "tcp"
	case 17:
		return "udp"
	}
	return strconv.Itoa(int(p))
}

// String renders the entry in iptables-save rule-spec order. It is also
// the entry's identity: two entries with the same String are equal.
func (e Entry) String() string {
	var parts []string
	if e.Src != nil {
		parts = append(parts, "-s", e.Src.String())
	}
	if e.Dst != nil {
		parts = append(parts, "-d", e.Dst.String())
	}
	if e.InIface != "" {
		if e.InInvert {
			parts = append(parts, "!")
		}
		parts = append(parts, "-i", e.InIface)
	}
	if e.OutIface != "" {
		parts = append(parts, "-o", e.OutIface)
	}
	if e.Proto != 0 {
		parts = append(parts, "-p", ProtoName(e.Proto))
	}
	for _, m := range e.Matches {
		parts = append(parts, "-m", m.Name)
		for _, a := range m.Args {
			parts = append(parts, quoteArg(a))
		}
	}
	if e.Target.Name != "" {
		parts = append(parts, "-j", e.Target.Name)
		for _, a := range e.Target.Args {
			parts = append(parts, quoteArg(a))
		}
	}
	return strings.Join(parts, " ")
}

func quoteArg(a string) string {
	if a == "" || strings.ContainsAny(a, " \t\"") {
		return strconv.Quote(a)
	}
	return a
}

// clone copies the entry's slices so the copy can be changed independently.
func (e Entry) clone() Entry {
	c := e
	c.Matches = make([]Match, len(e.Matches))
	for i, m := range e.Matches {
		c.Matches[i] = Match{Name: m.Name, Args: append([]string(nil), m.Args...)}
	}
	c.Target.Args = append([]string(nil), e.Target.Args...)
	return c
}
