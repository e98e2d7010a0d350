package firewall

import "sort"

// Ref locates one synthesized entry. Key is the entry's canonical text.
type Ref struct {
	Table string
	Chain string
	Key   string
	// Peer is the other endpoint of an entry joining two networks.
	Peer string
}

// State is what the synthesizer has installed: the set of networks whose
// entries are present and, per network, the entries it owns.
type State struct {
	installed map[string]bool
	refs      map[string][]Ref
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		installed: make(map[string]bool),
		refs:      make(map[string][]Ref),
	}
}

// Installed reports whether network has its entries installed.
func (s *State) Installed(network string) bool {
	return s.installed[network]
}

// Networks returns the installed networks, sorted.
func (s *State) Networks() []string {
	out := make([]string, 0, len(s.installed))
	for n := range s.installed {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Refs returns the entries owned by network.
func (s *State) Refs(network string) []Ref {
	return append([]Ref(nil), s.refs[network]...)
}

// Reset forgets everything, as after a ruleset clear.
func (s *State) Reset() {
	s.installed = make(map[string]bool)
	s.refs = make(map[string][]Ref)
}

func (s *State) install(network string) {
	s.installed[network] = true
}

// track records ref under owner and, for pair entries, under peer.
func (s *State) track(ref Ref, owner, peer string) {
	ref.Peer = peer
	s.refs[owner] = append(s.refs[owner], ref)
	if peer != "" && peer != owner {
		back := ref
		back.Peer = owner
		s.refs[peer] = append(s.refs[peer], back)
	}
}

// forget drops network and the peer copies of its pair entries.
func (s *State) forget(network string) {
	for _, r := range s.refs[network] {
		if r.Peer == "" || r.Peer == network {
			continue
		}
		list := s.refs[r.Peer]
		for i, pr := range list {
			if pr.Table == r.Table && pr.Chain == r.Chain && pr.Key == r.Key && pr.Peer == network {
				s.refs[r.Peer] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	delete(s.refs, network)
	delete(s.installed, network)
}
