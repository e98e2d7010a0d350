// Package pfctl is the packet-filter control plane: tables of named chains
// holding ordered entries, edited as a staged copy and published with
// Commit.
//
// Two backends exist. NFTBackend programs the kernel through nftables;
// MemBackend keeps everything in memory and is used for dry runs, ruleset
// rendering and tests.
package pfctl

import (
	"errors"
	"fmt"
)

// Table names.
const (
	TableFilter = "filter"
	TableNAT    = "nat"
)

// Built-in chain names.
const (
	ChainInput       = "INPUT"
	ChainForward     = "FORWARD"
	ChainOutput      = "OUTPUT"
	ChainPrerouting  = "PREROUTING"
	ChainPostrouting = "POSTROUTING"
)

// Policy is a built-in chain's default verdict.
type Policy string

const (
	PolicyAccept Policy = TargetAccept
	PolicyDrop   Policy = TargetDrop
)

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrNoChain       = errors.New("no such chain")
	ErrChainExists   = errors.New("chain already exists")
	ErrBuiltinChain  = errors.New("operation not permitted on built-in chain")
	ErrChainNotEmpty = errors.New("chain is not empty")
	ErrChainInUse    = errors.New("chain is referenced")
	ErrIndex         = errors.New("entry index out of range")
)

var builtinChains = map[string][]string{
	TableFilter: {ChainInput, ChainForward, ChainOutput},
	TableNAT:    {ChainPrerouting, ChainInput, ChainOutput, ChainPostrouting},
}

// Backend opens tables.
type Backend interface {
	// OpenTable returns a private staged copy of the named table's
	// current contents.
	OpenTable(name string) (Table, error)
}

// Table is a staged copy of one table. Mutations are local until Commit,
// which publishes the whole table or nothing.
type Table interface {
	Name() string
	Chains() []string
	ChainExists(name string) bool
	IsBuiltin(name string) bool
	Policy(chain string) (Policy, error)
	SetPolicy(chain string, p Policy) error
	CreateChain(name string) error
	DeleteChain(name string) error
	FlushChain(name string) error
	Entries(chain string) ([]Entry, error)
	AppendEntry(chain string, e Entry) error
	InsertEntry(chain string, pos int, e Entry) error
	DeleteEntryAt(chain string, idx int) error
	Commit() error
}

// Chain is one chain of a ruleset.
type Chain struct {
	Name    string
	Builtin bool
	Policy  Policy
	Entries []Entry
}

// Ruleset is the full contents of one table.
type Ruleset struct {
	Table  string
	Chains []*Chain
}

// NewRuleset returns a table holding only its built-in chains, each with
// an ACCEPT policy.
func NewRuleset(table string) (*Ruleset, error) {
	names, ok := builtinChains[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	rs := &Ruleset{Table: table}
	for _, n := range names {
		rs.Chains = append(rs.Chains, &Chain{Name: n, Builtin: true, Policy: PolicyAccept})
	}
	return rs, nil
}

// Clone deep-copies the ruleset.
func (rs *Ruleset) Clone() *Ruleset {
	out := &Ruleset{Table: rs.Table, Chains: make([]*Chain, len(rs.Chains))}
	for i, c := range rs.Chains {
		nc := &Chain{Name: c.Name, Builtin: c.Builtin, Policy: c.Policy}
		nc.Entries = make([]Entry, len(c.Entries))
		for j, e := range c.Entries {
			nc.Entries[j] = e.clone()
		}
		out.Chains[i] = nc
	}
	return out
}

// Chain finds a chain by name.
func (rs *Ruleset) Chain(name string) *Chain {
	for _, c := range rs.Chains {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// EntryCount returns the number of entries across all chains.
func (rs *Ruleset) EntryCount() int {
	if rs == nil {
		return 0
	}
	n := 0
	for _, c := range rs.Chains {
		n += len(c.Entries)
	}
	return n
}

// stagedTable implements Table over a private Ruleset.
type stagedTable struct {
	rs       *Ruleset
	validate func(Entry) error
	publish  func(*Ruleset) error
}

func newStagedTable(rs *Ruleset, validate func(Entry) error, publish func(*Ruleset) error) *stagedTable {
	return &stagedTable{rs: rs, validate: validate, publish: publish}
}

func (t *stagedTable) Name() string { return t.rs.Table }

func (t *stagedTable) Chains() []string {
	names := make([]string, len(t.rs.Chains))
	for i, c := range t.rs.Chains {
		names[i] = c.Name
	}
	return names
}

func (t *stagedTable) ChainExists(name string) bool {
	return t.rs.Chain(name) != nil
}

func (t *stagedTable) IsBuiltin(name string) bool {
	c := t.rs.Chain(name)
	return c != nil && c.Builtin
}

func (t *stagedTable) chain(name string) (*Chain, error) {
	c := t.rs.Chain(name)
	if c == nil {
		return nil, fmt.Errorf("%s/%s: %w", t.rs.Table, name, ErrNoChain)
	}
	return c, nil
}

func (t *stagedTable) Policy(chain string) (Policy, error) {
	c, err := t.chain(chain)
	if err != nil {
		return "", err
	}
	if !c.Builtin {
		return "", fmt.Errorf("%s/%s: %w", t.rs.Table, chain, ErrBuiltinChain)
	}
	return c.Policy, nil
}

func (t *stagedTable) SetPolicy(chain string, p Policy) error {
	c, err := t.chain(chain)
	if err != nil {
		return err
	}
	if !c.Builtin {
		return fmt.Errorf("policy on user chain %s/%s: %w", t.rs.Table, chain, ErrBuiltinChain)
	}
	if p != PolicyAccept && p != PolicyDrop {
		return fmt.Errorf("invalid policy %q", p)
	}
	c.Policy = p
	return nil
}

func (t *stagedTable) CreateChain(name string) error {
	if name == "" || len(name) > 28 {
		return fmt.Errorf("invalid chain name %q", name)
	}
	if !IsJump(name) {
		return fmt.Errorf("chain name %q is a target name", name)
	}
	if t.rs.Chain(name) != nil {
		return fmt.Errorf("%s/%s: %w", t.rs.Table, name, ErrChainExists)
	}
	t.rs.Chains = append(t.rs.Chains, &Chain{Name: name})
	return nil
}

func (t *stagedTable) DeleteChain(name string) error {
	c, err := t.chain(name)
	if err != nil {
		return err
	}
	if c.Builtin {
		return fmt.Errorf("%s/%s: %w", t.rs.Table, name, ErrBuiltinChain)
	}
	if len(c.Entries) > 0 {
		return fmt.Errorf("%s/%s: %w", t.rs.Table, name, ErrChainNotEmpty)
	}
	for _, other := range t.rs.Chains {
		for _, e := range other.Entries {
			if e.Target.Name == name {
				return fmt.Errorf("%s/%s: %w by %s", t.rs.Table, name, ErrChainInUse, other.Name)
			}
		}
	}
	for i, other := range t.rs.Chains {
		if other == c {
			t.rs.Chains = append(t.rs.Chains[:i], t.rs.Chains[i+1:]...)
			break
		}
	}
	return nil
}

func (t *stagedTable) FlushChain(name string) error {
	c, err := t.chain(name)
	if err != nil {
		return err
	}
	c.Entries = nil
	return nil
}

func (t *stagedTable) Entries(chain string) ([]Entry, error) {
	c, err := t.chain(chain)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(c.Entries))
	copy(out, c.Entries)
	return out, nil
}

func (t *stagedTable) check(chain string, e Entry) (*Chain, error) {
	c, err := t.chain(chain)
	if err != nil {
		return nil, err
	}
	if e.Target.Name == "" {
		return nil, fmt.Errorf("%s/%s: entry has no target", t.rs.Table, chain)
	}
	if IsJump(e.Target.Name) && t.rs.Chain(e.Target.Name) == nil {
		return nil, fmt.Errorf("jump to %s/%s: %w", t.rs.Table, e.Target.Name, ErrNoChain)
	}
	if t.validate != nil {
		if err := t.validate(e); err != nil {
			return nil, fmt.Errorf("%s/%s: %w", t.rs.Table, chain, err)
		}
	}
	return c, nil
}

func (t *stagedTable) AppendEntry(chain string, e Entry) error {
	c, err := t.check(chain, e)
	if err != nil {
		return err
	}
	c.Entries = append(c.Entries, e.clone())
	return nil
}

// InsertEntry inserts e before position pos; pos == len(entries) appends.
func (t *stagedTable) InsertEntry(chain string, pos int, e Entry) error {
	c, err := t.check(chain, e)
	if err != nil {
		return err
	}
	if pos < 0 || pos > len(c.Entries) {
		return fmt.Errorf("%s/%s[%d]: %w", t.rs.Table, chain, pos, ErrIndex)
	}
	c.Entries = append(c.Entries, Entry{})
	copy(c.Entries[pos+1:], c.Entries[pos:])
	c.Entries[pos] = e.clone()
	return nil
}

func (t *stagedTable) DeleteEntryAt(chain string, idx int) error {
	c, err := t.chain(chain)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(c.Entries) {
		return fmt.Errorf("%s/%s[%d]: %w", t.rs.Table, chain, idx, ErrIndex)
	}
	c.Entries = append(c.Entries[:idx], c.Entries[idx+1:]...)
	return nil
}

func (t *stagedTable) Commit() error {
	return t.publish(t.rs.Clone())
}
