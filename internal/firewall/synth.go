package firewall

import (
	"errors"
	"fmt"
	"strconv"

	"grimm.is/zonefwd/internal/logging"
	"grimm.is/zonefwd/internal/metrics"
	"grimm.is/zonefwd/internal/model"
	"grimm.is/zonefwd/internal/pfctl"
)

// ErrCommit wraps every failed table commit. The ruleset may be half
// applied when it is returned.
var ErrCommit = errors.New("commit failed")

// Synthesizer turns the rule model into packet-filter entries.
type Synthesizer struct {
	backend pfctl.Backend
	logger  *logging.Logger
	metrics *metrics.Registry
}

// New creates a Synthesizer. reg may be nil.
func New(backend pfctl.Backend, logger *logging.Logger, reg *metrics.Registry) *Synthesizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Synthesizer{
		backend: backend,
		logger:  logger.WithComponent("synth"),
		metrics: reg,
	}
}

// pending is an entry appended in the current transaction, tracked once
// the transaction commits.
type pending struct {
	ref   Ref
	owner string
	peer  string
}

// tx is one edit of both tables.
type tx struct {
	filter pfctl.Table
	nat    pfctl.Table
	added  []pending
	log    *logging.Logger
}

func (s *Synthesizer) begin() (*tx, error) {
	filter, err := s.backend.OpenTable(pfctl.TableFilter)
	if err != nil {
		return nil, fmt.Errorf("open filter table: %w", err)
	}
	nat, err := s.backend.OpenTable(pfctl.TableNAT)
	if err != nil {
		return nil, fmt.Errorf("open nat table: %w", err)
	}
	return &tx{filter: filter, nat: nat, log: s.logger}, nil
}

func (t *tx) table(name string) pfctl.Table {
	if name == pfctl.TableNAT {
		return t.nat
	}
	return t.filter
}

func (t *tx) append(table, chain string, e pfctl.Entry) error {
	if err := t.table(table).AppendEntry(chain, e); err != nil {
		return fmt.Errorf("%s/%s: %w", table, chain, err)
	}
	return nil
}

// emit appends a synthesized entry owned by owner and, for pair entries,
// by peer.
func (t *tx) emit(table, chain string, e pfctl.Entry, owner, peer string) error {
	if err := t.append(table, chain, e); err != nil {
		return err
	}
	key := e.String()
	t.log.Debug("entry added", "table", table, "chain", chain, "rule", key)
	t.added = append(t.added, pending{ref: Ref{Table: table, Chain: chain, Key: key}, owner: owner, peer: peer})
	return nil
}

// deleteRef deletes the first entry matching ref.
func (t *tx) deleteRef(ref Ref) bool {
	tbl := t.table(ref.Table)
	entries, err := tbl.Entries(ref.Chain)
	if err != nil {
		return false
	}
	for i, e := range entries {
		if e.String() == ref.Key {
			if tbl.DeleteEntryAt(ref.Chain, i) == nil {
				t.log.Debug("entry removed", "table", ref.Table, "chain", ref.Chain, "rule", ref.Key)
				return true
			}
			return false
		}
	}
	return false
}

// sweep deletes every entry whose comment names network, rescanning a
// chain from the start after each deletion.
func (t *tx) sweep(network string) int {
	removed := 0
	for _, tbl := range []pfctl.Table{t.filter, t.nat} {
		for _, chain := range tbl.Chains() {
			for {
				entries, err := tbl.Entries(chain)
				if err != nil {
					break
				}
				idx := -1
				for i, e := range entries {
					if MentionsNetwork(e.Comment(), network) {
						idx = i
						break
					}
				}
				if idx < 0 || tbl.DeleteEntryAt(chain, idx) != nil {
					break
				}
				removed++
			}
		}
	}
	return removed
}

// commit publishes filter, then nat.
func (s *Synthesizer) commit(t *tx) error {
	for _, tbl := range []pfctl.Table{t.filter, t.nat} {
		err := tbl.Commit()
		s.metrics.RecordCommit(tbl.Name(), err)
		if err != nil {
			s.logger.Error("commit failed", "table", tbl.Name(), "error", err)
			return fmt.Errorf("%w: %s: %w", ErrCommit, tbl.Name(), err)
		}
		for _, chain := range tbl.Chains() {
			entries, _ := tbl.Entries(chain)
			s.metrics.SetRuleEntries(tbl.Name(), chain, len(entries))
		}
	}
	return nil
}

// ClearRuleset flushes every chain, deletes every user chain and resets
// the filter base policies to accept.
func (s *Synthesizer) ClearRuleset(st *State) error {
	t, err := s.begin()
	if err != nil {
		return err
	}
	for _, tbl := range []pfctl.Table{t.filter, t.nat} {
		for _, chain := range tbl.Chains() {
			if err := tbl.FlushChain(chain); err != nil {
				return fmt.Errorf("flush %s/%s: %w", tbl.Name(), chain, err)
			}
		}
		for _, chain := range tbl.Chains() {
			if tbl.IsBuiltin(chain) {
				continue
			}
			if err := tbl.DeleteChain(chain); err != nil {
				return fmt.Errorf("delete %s/%s: %w", tbl.Name(), chain, err)
			}
		}
	}
	for _, chain := range []string{pfctl.ChainInput, pfctl.ChainOutput, pfctl.ChainForward} {
		if err := t.filter.SetPolicy(chain, pfctl.PolicyAccept); err != nil {
			return err
		}
	}

	s.metrics.ResetRuleEntries()
	if err := s.commit(t); err != nil {
		return err
	}
	st.Reset()
	s.logger.Info("ruleset cleared")
	return nil
}

// BuildDefaults sets the base policies and creates the chain skeleton.
// It expects a cleared ruleset.
func (s *Synthesizer) BuildDefaults(d model.Defaults) error {
	t, err := s.begin()
	if err != nil {
		return err
	}
	if err := buildFilterDefaults(t, d); err != nil {
		return err
	}
	if err := buildNATDefaults(t); err != nil {
		return err
	}
	if err := s.commit(t); err != nil {
		return err
	}
	s.logger.Info("defaults built",
		"input", d.Input.String(), "output", d.Output.String(), "forward", d.Forward.String(),
		"syn_flood", d.SynFlood, "drop_invalid", d.DropInvalid)
	return nil
}

type chainEntry struct {
	chain string
	e     pfctl.Entry
}

func buildFilterDefaults(t *tx, d model.Defaults) error {
	f := t.filter

	policies := map[string]model.Policy{
		pfctl.ChainInput:   d.Input,
		pfctl.ChainOutput:  d.Output,
		pfctl.ChainForward: d.Forward,
	}
	for _, chain := range []string{pfctl.ChainInput, pfctl.ChainOutput, pfctl.ChainForward} {
		if err := f.SetPolicy(chain, basePolicy(policies[chain])); err != nil {
			return err
		}
	}

	chains := []string{ChainAccept, ChainDrop, ChainReject}
	chains = append(chains, filterContainers...)
	if d.SynFlood {
		chains = append(chains, ChainSynFlood)
	}
	for _, c := range chains {
		if err := f.CreateChain(c); err != nil {
			return fmt.Errorf("create filter/%s: %w", c, err)
		}
	}

	var entries []chainEntry
	add := func(chain string, e pfctl.Entry) {
		entries = append(entries, chainEntry{chain, e})
	}

	// Terminal handlers.
	add(ChainAccept, pfctl.Entry{Target: pfctl.Target{Name: pfctl.TargetAccept}})
	add(ChainDrop, pfctl.Entry{Target: pfctl.Target{Name: pfctl.TargetDrop}})
	add(ChainReject, pfctl.Entry{Proto: 6, Target: pfctl.Target{Name: pfctl.TargetReject, Args: []string{"--reject-with", "tcp-reset"}}})
	add(ChainReject, pfctl.Entry{Target: pfctl.Target{Name: pfctl.TargetReject, Args: []string{"--reject-with", "icmp-port-unreachable"}}})

	if d.SynFlood {
		limited := pfctl.Entry{Proto: 6, Target: pfctl.Target{Name: pfctl.TargetReturn}}
		limited.AddMatch("tcp", "--syn")
		limited.AddMatch("limit", "--limit", strconv.Itoa(d.SynRate)+"/second", "--limit-burst", strconv.Itoa(d.SynBurst))
		add(ChainSynFlood, limited)
		add(ChainSynFlood, pfctl.Entry{Target: pfctl.Target{Name: pfctl.TargetDrop}})
	}

	state := func(states string, target string) pfctl.Entry {
		e := pfctl.Entry{Target: pfctl.Target{Name: target}}
		e.AddMatch("conntrack", "--ctstate", states)
		return e
	}

	for _, chain := range []string{pfctl.ChainInput, pfctl.ChainForward, pfctl.ChainOutput} {
		if d.DropInvalid {
			add(chain, state("INVALID", pfctl.TargetDrop))
		}
		add(chain, state("RELATED,ESTABLISHED", pfctl.TargetAccept))
	}
	add(pfctl.ChainInput, pfctl.Entry{InIface: "lo", Target: pfctl.Target{Name: pfctl.TargetAccept}})
	add(pfctl.ChainOutput, pfctl.Entry{OutIface: "lo", Target: pfctl.Target{Name: pfctl.TargetAccept}})
	if d.SynFlood {
		syn := pfctl.Entry{Proto: 6, Target: jump(ChainSynFlood)}
		syn.AddMatch("tcp", "--syn")
		add(pfctl.ChainInput, syn)
	}

	add(pfctl.ChainInput, pfctl.Entry{Target: jump(ChainRules)})
	add(pfctl.ChainInput, pfctl.Entry{Target: jump(ChainPolicies)})
	for _, c := range []string{ChainMSSFix, ChainFwdRules, ChainRedirects, ChainZones, ChainForwardings} {
		add(pfctl.ChainForward, pfctl.Entry{Target: jump(c)})
	}
	add(pfctl.ChainOutput, pfctl.Entry{Target: jump(ChainPolicies)})

	for _, x := range entries {
		if err := t.append(pfctl.TableFilter, x.chain, x.e); err != nil {
			return err
		}
	}
	return nil
}

func buildNATDefaults(t *tx) error {
	for _, c := range natContainers {
		if err := t.nat.CreateChain(c); err != nil {
			return fmt.Errorf("create nat/%s: %w", c, err)
		}
	}
	wiring := []struct{ chain, target string }{
		{pfctl.ChainPrerouting, ChainRedirects},
		{pfctl.ChainPostrouting, ChainZoneMasq},
		{pfctl.ChainPostrouting, ChainLoopback},
	}
	for _, w := range wiring {
		if err := t.append(pfctl.TableNAT, w.chain, pfctl.Entry{Target: jump(w.target)}); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild clears the ruleset, builds the defaults and adds every network
// that currently has an address.
func (s *Synthesizer) Rebuild(m *model.Model, st *State) error {
	if err := s.ClearRuleset(st); err != nil {
		return err
	}
	if err := s.BuildDefaults(m.Defaults); err != nil {
		return err
	}
	for _, n := range m.Networks() {
		if err := s.AddInterface(m, st, n); err != nil {
			return err
		}
	}
	return nil
}
