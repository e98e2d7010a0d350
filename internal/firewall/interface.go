package firewall

import (
	"grimm.is/zonefwd/internal/model"
	"grimm.is/zonefwd/internal/pfctl"
)

// peers returns the networks of z, other than self, that have an address
// and whose entries are installed. self counts as installed.
func peers(st *State, z *model.Zone, self *model.Network) []*model.Network {
	if z == nil {
		return nil
	}
	var out []*model.Network
	for _, p := range z.Networks {
		if p == self || p.Addr.IsEmpty() || !st.Installed(p.Name) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// AddInterface installs the entries of network n. It is a no-op when n has
// no address or is already installed.
func (s *Synthesizer) AddInterface(m *model.Model, st *State, n *model.Network) error {
	if n.Addr.IsEmpty() {
		return nil
	}
	if st.Installed(n.Name) {
		s.logger.Debug("network already installed", "network", n.Name)
		return nil
	}
	z := n.Zone

	t, err := s.begin()
	if err != nil {
		return err
	}
	a := &adder{tx: t, m: m, st: st, n: n, z: z}
	steps := []func() error{
		a.zoneMasq,
		a.zoneMSSFix,
		a.intraZone,
		a.forwardings,
		a.redirects,
		a.rules,
		a.policies,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	if err := s.commit(t); err != nil {
		return err
	}
	st.install(n.Name)
	for _, p := range t.added {
		st.track(p.ref, p.owner, p.peer)
	}
	s.logger.Info("network added", "network", n.Name, "ifname", n.Ifname, "zone", z.Name,
		"addr", n.Addr.String(), "entries", len(t.added))
	return nil
}

// RemoveInterface deletes the entries of network n: first every tracked
// entry by exact match, then any entry whose comment names n. Calling it
// for a network with nothing installed changes nothing.
func (s *Synthesizer) RemoveInterface(st *State, n *model.Network) error {
	t, err := s.begin()
	if err != nil {
		return err
	}

	removed := 0
	for _, ref := range st.Refs(n.Name) {
		if t.deleteRef(ref) {
			removed++
		}
	}
	swept := t.sweep(n.Name)

	if removed+swept > 0 {
		if err := s.commit(t); err != nil {
			return err
		}
	}
	wasInstalled := st.Installed(n.Name)
	st.forget(n.Name)
	if removed+swept > 0 || wasInstalled {
		s.logger.Info("network removed", "network", n.Name, "entries", removed, "swept", swept)
	}
	return nil
}

// ChangeInterface reinstalls n after an address change.
func (s *Synthesizer) ChangeInterface(m *model.Model, st *State, n *model.Network) error {
	if err := s.RemoveInterface(st, n); err != nil {
		return err
	}
	return s.AddInterface(m, st, n)
}

// adder emits the entries of one network in a transaction.
type adder struct {
	*tx
	m  *model.Model
	st *State
	n  *model.Network
	z  *model.Zone
}

func (a *adder) zoneMasq() error {
	if !a.z.Masq {
		return nil
	}
	e := pfctl.Entry{OutIface: a.n.Device(), Target: pfctl.Target{Name: pfctl.TargetMasquerade}}
	e.SetComment(Comment(TagMasq, a.n.Name, a.z.Name))
	return a.emit(pfctl.TableNAT, ChainZoneMasq, e, a.n.Name, "")
}

func (a *adder) zoneMSSFix() error {
	if !a.z.MTUFix {
		return nil
	}
	e := pfctl.Entry{OutIface: a.n.Device(), Target: mssTarget()}
	mssClamp(&e)
	e.SetComment(Comment(TagMSSFix, a.n.Name, a.z.Name))
	return a.emit(pfctl.TableFilter, ChainMSSFix, e, a.n.Name, "")
}

// intraZone applies the zone's forward policy between n and each sibling,
// in both directions.
func (a *adder) intraZone() error {
	target := jump(policyChain(a.z.EffectivePolicy(model.DirForward, a.m.Defaults)))
	for _, p := range peers(a.st, a.z, a.n) {
		for _, dir := range [][2]*model.Network{{a.n, p}, {p, a.n}} {
			in, out := dir[0], dir[1]
			e := pfctl.Entry{InIface: in.Device(), OutIface: out.Device(), Target: target}
			e.SetComment(Comment(TagZone, in.Name, a.z.Name))
			if err := a.emit(pfctl.TableFilter, ChainZones, e, in.Name, out.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// forwardings emits every forwarding with n on either side.
func (a *adder) forwardings() error {
	for _, f := range a.z.Forwardings {
		for _, d := range peers(a.st, f.Dest, a.n) {
			if err := a.forwarding(f, a.n, d); err != nil {
				return err
			}
		}
	}
	for _, src := range a.m.Zones {
		for _, f := range src.Forwardings {
			if f.Dest != a.z {
				continue
			}
			for _, sn := range peers(a.st, src, a.n) {
				if err := a.forwarding(f, sn, a.n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (a *adder) forwarding(f *model.Forwarding, src, dst *model.Network) error {
	e := pfctl.Entry{InIface: src.Device(), OutIface: dst.Device(), Target: jump(ChainAccept)}
	e.SetComment(Comment(TagForward, src.Name, f.Src.Name))
	if err := a.emit(pfctl.TableFilter, ChainForwardings, e, src.Name, dst.Name); err != nil {
		return err
	}

	if f.Masq {
		me := pfctl.Entry{
			Src:      src.Addr.Network().IPNet(),
			OutIface: dst.Device(),
			Target:   pfctl.Target{Name: pfctl.TargetMasquerade},
		}
		me.SetComment(Comment(TagMasq, src.Name, f.Src.Name))
		if err := a.emit(pfctl.TableNAT, ChainZoneMasq, me, src.Name, dst.Name); err != nil {
			return err
		}
	}
	if f.MTUFix {
		ce := pfctl.Entry{InIface: src.Device(), OutIface: dst.Device(), Target: mssTarget()}
		mssClamp(&ce)
		ce.SetComment(Comment(TagMSSFix, src.Name, f.Src.Name))
		if err := a.emit(pfctl.TableFilter, ChainMSSFix, ce, src.Name, dst.Name); err != nil {
			return err
		}
	}
	return nil
}

func (a *adder) redirects() error {
	for _, r := range a.z.Redirects {
		if r.DestIP == nil {
			a.log.Warn("redirect without destination skipped", "zone", a.z.Name)
			continue
		}
		if err := a.emit(pfctl.TableNAT, ChainRedirects, redirectDNAT(r, a.n), a.n.Name, ""); err != nil {
			return err
		}
		if err := a.emit(pfctl.TableFilter, ChainRedirects, redirectAccept(r, a.n), a.n.Name, ""); err != nil {
			return err
		}
		if r.SrcIP == nil && len(r.SrcMAC) == 0 {
			if err := a.emit(pfctl.TableNAT, ChainLoopback, redirectLoopback(r, a.n), a.n.Name, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// rules emits input rules of this zone into the INPUT-only rules chain,
// and forward rules with n on either side into forward_rules.
func (a *adder) rules() error {
	for _, r := range a.z.Rules {
		if r.Dest == nil {
			if err := a.emit(pfctl.TableFilter, ChainRules, ruleEntry(r, a.n, nil), a.n.Name, ""); err != nil {
				return err
			}
			continue
		}
		for _, d := range peers(a.st, r.Dest, a.n) {
			if err := a.emit(pfctl.TableFilter, ChainFwdRules, ruleEntry(r, a.n, d), a.n.Name, d.Name); err != nil {
				return err
			}
		}
	}
	for _, src := range a.m.Zones {
		for _, r := range src.Rules {
			if r.Dest != a.z {
				continue
			}
			for _, sn := range peers(a.st, src, a.n) {
				if err := a.emit(pfctl.TableFilter, ChainFwdRules, ruleEntry(r, sn, a.n), sn.Name, a.n.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// policies applies the zone's input and output policies to n.
func (a *adder) policies() error {
	in := pfctl.Entry{InIface: a.n.Device(), Target: jump(policyChain(a.z.EffectivePolicy(model.DirInput, a.m.Defaults)))}
	in.SetComment(Comment(TagPolicy, a.n.Name, a.z.Name))
	if err := a.emit(pfctl.TableFilter, ChainPolicies, in, a.n.Name, ""); err != nil {
		return err
	}
	out := pfctl.Entry{OutIface: a.n.Device(), Target: jump(policyChain(a.z.EffectivePolicy(model.DirOutput, a.m.Defaults)))}
	out.SetComment(Comment(TagPolicy, a.n.Name, a.z.Name))
	return a.emit(pfctl.TableFilter, ChainPolicies, out, a.n.Name, "")
}
