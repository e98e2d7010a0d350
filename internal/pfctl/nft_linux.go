//go:build linux

package pfctl

import (
	"fmt"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
)

// NFTablesConn is the subset of *nftables.Conn the backend uses.
type NFTablesConn interface {
	AddTable(t *nftables.Table) *nftables.Table
	DelTable(t *nftables.Table)
	AddChain(c *nftables.Chain) *nftables.Chain
	ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error)
	AddRule(r *nftables.Rule) *nftables.Rule
	GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error)
	Flush() error
}

type baseChain struct {
	typ  nftables.ChainType
	hook *nftables.ChainHook
	prio *nftables.ChainPriority
}

var baseChains = map[string]map[string]baseChain{
	TableFilter: {
		ChainInput:   {nftables.ChainTypeFilter, nftables.ChainHookInput, nftables.ChainPriorityFilter},
		ChainForward: {nftables.ChainTypeFilter, nftables.ChainHookForward, nftables.ChainPriorityFilter},
		ChainOutput:  {nftables.ChainTypeFilter, nftables.ChainHookOutput, nftables.ChainPriorityFilter},
	},
	TableNAT: {
		ChainPrerouting:  {nftables.ChainTypeNAT, nftables.ChainHookPrerouting, nftables.ChainPriorityNATDest},
		ChainInput:       {nftables.ChainTypeNAT, nftables.ChainHookInput, nftables.ChainPriorityNATSource},
		ChainOutput:      {nftables.ChainTypeNAT, nftables.ChainHookOutput, nftables.ChainPriorityNATDest},
		ChainPostrouting: {nftables.ChainTypeNAT, nftables.ChainHookPostrouting, nftables.ChainPriorityNATSource},
	},
}

// NFTBackend keeps each table in a dedicated nftables table named
// <prefix>_<table> in the ip family. The first OpenTable of a table reads
// it from the kernel; afterwards the last committed ruleset is reused so
// entries keep their full form.
type NFTBackend struct {
	mu     sync.Mutex
	conn   NFTablesConn
	prefix string
	cache  map[string]*Ruleset
}

// NewNFTBackend creates a backend over conn.
func NewNFTBackend(conn NFTablesConn, prefix string) *NFTBackend {
	return &NFTBackend{
		conn:   conn,
		prefix: prefix,
		cache:  make(map[string]*Ruleset),
	}
}

// NewKernelBackend connects to nftables. A non-negative netnsFd selects
// the network namespace to program.
func NewKernelBackend(prefix string, netnsFd int) (Backend, error) {
	var opts []nftables.ConnOption
	if netnsFd >= 0 {
		opts = append(opts, nftables.WithNetNSFd(netnsFd))
	}
	conn, err := nftables.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open nftables connection: %w", err)
	}
	return NewNFTBackend(conn, prefix), nil
}

// KernelTable returns the nftables table name used for table.
func (b *NFTBackend) KernelTable(table string) string {
	return b.prefix + "_" + table
}

// OpenTable implements Backend.
func (b *NFTBackend) OpenTable(name string) (Table, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.cache[name]
	if !ok {
		var err error
		if rs, err = b.load(name); err != nil {
			return nil, err
		}
		b.cache[name] = rs
	}
	return newStagedTable(rs.Clone(), validateEntry, b.publish), nil
}

func (b *NFTBackend) load(name string) (*Ruleset, error) {
	rs, err := NewRuleset(name)
	if err != nil {
		return nil, err
	}

	chains, err := b.conn.ListChainsOfTableFamily(nftables.TableFamilyIPv4)
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}

	kname := b.KernelTable(name)
	for _, c := range chains {
		if c.Table == nil || c.Table.Name != kname {
			continue
		}
		rc := rs.Chain(c.Name)
		if rc == nil {
			if c.Hooknum != nil {
				// A base chain we would not have created; it is dropped
				// on the next commit.
				continue
			}
			rc = &Chain{Name: c.Name}
			rs.Chains = append(rs.Chains, rc)
		}
		if rc.Builtin && c.Policy != nil && *c.Policy == nftables.ChainPolicyDrop {
			rc.Policy = PolicyDrop
		}

		rules, err := b.conn.GetRules(c.Table, c)
		if err != nil {
			return nil, fmt.Errorf("failed to get rules of %s/%s: %w", kname, c.Name, err)
		}
		for _, r := range rules {
			e := Entry{Target: decodeTarget(r.Exprs), native: r.Exprs}
			if len(r.UserData) > 0 {
				e.SetComment(string(r.UserData))
			}
			rc.Entries = append(rc.Entries, e)
		}
	}
	return rs, nil
}

// decodeTarget recovers enough of a kernel rule's verdict to keep chain
// references visible.
func decodeTarget(exprs []expr.Any) Target {
	if len(exprs) == 0 {
		return Target{Name: "?"}
	}
	switch v := exprs[len(exprs)-1].(type) {
	case *expr.Verdict:
		switch v.Kind {
		case expr.VerdictAccept:
			return Target{Name: TargetAccept}
		case expr.VerdictDrop:
			return Target{Name: TargetDrop}
		case expr.VerdictReturn:
			return Target{Name: TargetReturn}
		case expr.VerdictJump, expr.VerdictGoto:
			return Target{Name: v.Chain}
		}
	case *expr.Masq:
		return Target{Name: TargetMasquerade}
	case *expr.NAT:
		return Target{Name: TargetDNAT}
	case *expr.Reject:
		return Target{Name: TargetReject}
	case *expr.Exthdr:
		return Target{Name: TargetTCPMSS}
	}
	return Target{Name: "?"}
}

// publish replaces the kernel table with rs in a single batch. The kernel
// applies a batch as one transaction, so the table is either fully
// replaced or left as it was.
func (b *NFTBackend) publish(rs *Ruleset) error {
	type pending struct {
		chain    string
		exprs    []expr.Any
		userData []byte
	}

	// Compile everything before queueing anything on the connection.
	var rules []pending
	for _, c := range rs.Chains {
		for _, e := range c.Entries {
			exprs, err := compileEntry(e)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", rs.Table, c.Name, err)
			}
			var ud []byte
			if comment := e.Comment(); comment != "" {
				ud = []byte(comment)
			}
			rules = append(rules, pending{chain: c.Name, exprs: exprs, userData: ud})
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := &nftables.Table{Name: b.KernelTable(rs.Table), Family: nftables.TableFamilyIPv4}
	b.conn.AddTable(t)
	b.conn.DelTable(t)
	b.conn.AddTable(t)

	chains := make(map[string]*nftables.Chain, len(rs.Chains))
	for _, c := range rs.Chains {
		nc := &nftables.Chain{Name: c.Name, Table: t}
		if c.Builtin {
			bc, ok := baseChains[rs.Table][c.Name]
			if !ok {
				return fmt.Errorf("no hook for %s/%s", rs.Table, c.Name)
			}
			policy := nftables.ChainPolicyAccept
			if c.Policy == PolicyDrop {
				policy = nftables.ChainPolicyDrop
			}
			nc.Type = bc.typ
			nc.Hooknum = bc.hook
			nc.Priority = bc.prio
			nc.Policy = &policy
		}
		chains[c.Name] = b.conn.AddChain(nc)
	}

	for _, r := range rules {
		b.conn.AddRule(&nftables.Rule{
			Table:    t,
			Chain:    chains[r.chain],
			Exprs:    r.exprs,
			UserData: r.userData,
		})
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", t.Name, err)
	}
	b.cache[rs.Table] = rs
	return nil
}
