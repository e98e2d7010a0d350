package pfctl

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemBackend is an in-memory control plane.
type MemBackend struct {
	mu     sync.Mutex
	tables map[string]*Ruleset

	// CommitErr, when set, is returned by the next commit of the named
	// table instead of publishing it.
	CommitErr map[string]error
	commits   map[string]int
}

// NewMemBackend returns a backend with empty filter and nat tables.
func NewMemBackend() *MemBackend {
	m := &MemBackend{
		tables:    make(map[string]*Ruleset),
		CommitErr: make(map[string]error),
		commits:   make(map[string]int),
	}
	for name := range builtinChains {
		rs, _ := NewRuleset(name)
		m.tables[name] = rs
	}
	return m
}

// OpenTable implements Backend.
func (m *MemBackend) OpenTable(name string) (Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return newStagedTable(rs.Clone(), nil, m.publish), nil
}

func (m *MemBackend) publish(rs *Ruleset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CommitErr[rs.Table]; err != nil {
		delete(m.CommitErr, rs.Table)
		return err
	}
	m.tables[rs.Table] = rs
	m.commits[rs.Table]++
	return nil
}

// FailNextCommit makes the next commit of table return err.
func (m *MemBackend) FailNextCommit(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitErr[table] = err
}

// Commits returns how many times table was committed.
func (m *MemBackend) Commits(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits[table]
}

// Snapshot returns a copy of the committed contents of table.
func (m *MemBackend) Snapshot(table string) *Ruleset {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rs, ok := m.tables[table]; ok {
		return rs.Clone()
	}
	return nil
}

// Dump renders every table in iptables-save format, filter first.
func (m *MemBackend) Dump() string {
	m.mu.Lock()
	names := make([]string, 0, len(m.tables))
	for n := range m.tables {
		names = append(names, n)
	}
	m.mu.Unlock()
	sort.Strings(names)

	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(DumpRuleset(m.Snapshot(n)))
	}
	return sb.String()
}

// DumpRuleset renders one table in iptables-save format.
func DumpRuleset(rs *Ruleset) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s\n", rs.Table)
	for _, c := range rs.Chains {
		policy := "-"
		if c.Builtin {
			policy = string(c.Policy)
		}
		fmt.Fprintf(&sb, ":%s %s\n", c.Name, policy)
	}
	for _, c := range rs.Chains {
		for _, e := range c.Entries {
			fmt.Fprintf(&sb, "-A %s %s\n", c.Name, e.String())
		}
	}
	sb.WriteString("COMMIT\n")
	return sb.String()
}
