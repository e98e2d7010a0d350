//go:build linux

package pfctl

import (
	"sync"

	"github.com/google/nftables"
	"github.com/stretchr/testify/mock"
)

// MockNFTablesConn is a testify mock of NFTablesConn. Mutations are queued
// and only become visible to ListChainsOfTableFamily and GetRules after a
// successful Flush, like a netlink batch.
type MockNFTablesConn struct {
	mock.Mock
	mu sync.Mutex

	pending []func()
	tables  map[string]*nftables.Table
	chains  map[string][]*nftables.Chain
	rules   map[string][]*nftables.Rule
}

// NewMockNFTablesConn creates a new mock nftables connection.
func NewMockNFTablesConn() *MockNFTablesConn {
	return &MockNFTablesConn{
		tables: make(map[string]*nftables.Table),
		chains: make(map[string][]*nftables.Chain),
		rules:  make(map[string][]*nftables.Rule),
	}
}

// AllowAll registers permissive expectations for every method. Register
// specific expectations such as a failing Flush before calling it.
func (m *MockNFTablesConn) AllowAll() *MockNFTablesConn {
	m.On("AddTable", mock.Anything).Maybe()
	m.On("DelTable", mock.Anything).Maybe()
	m.On("AddChain", mock.Anything).Maybe()
	m.On("AddRule", mock.Anything).Maybe()
	m.On("ListChainsOfTableFamily", mock.Anything).Return(nil, nil).Maybe()
	m.On("GetRules", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	m.On("Flush").Return(nil).Maybe()
	return m
}

func ruleKey(table, chain string) string {
	return table + "/" + chain
}

func (m *MockNFTablesConn) AddTable(t *nftables.Table) *nftables.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(t)
	m.pending = append(m.pending, func() {
		if _, ok := m.tables[t.Name]; !ok {
			m.tables[t.Name] = t
		}
	})
	return t
}

func (m *MockNFTablesConn) DelTable(t *nftables.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(t)
	m.pending = append(m.pending, func() {
		for _, c := range m.chains[t.Name] {
			delete(m.rules, ruleKey(t.Name, c.Name))
		}
		delete(m.chains, t.Name)
		delete(m.tables, t.Name)
	})
}

func (m *MockNFTablesConn) AddChain(c *nftables.Chain) *nftables.Chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(c)
	m.pending = append(m.pending, func() {
		m.chains[c.Table.Name] = append(m.chains[c.Table.Name], c)
	})
	return c
}

func (m *MockNFTablesConn) ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(family)
	if args.Get(0) != nil {
		return args.Get(0).([]*nftables.Chain), args.Error(1)
	}
	var chains []*nftables.Chain
	for _, cs := range m.chains {
		for _, c := range cs {
			if c.Table.Family == family {
				chains = append(chains, c)
			}
		}
	}
	return chains, args.Error(1)
}

func (m *MockNFTablesConn) AddRule(r *nftables.Rule) *nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(r)
	m.pending = append(m.pending, func() {
		key := ruleKey(r.Table.Name, r.Chain.Name)
		m.rules[key] = append(m.rules[key], r)
	})
	return r
}

func (m *MockNFTablesConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(t, c)
	if args.Get(0) != nil {
		return args.Get(0).([]*nftables.Rule), args.Error(1)
	}
	return m.rules[ruleKey(t.Name, c.Name)], args.Error(1)
}

func (m *MockNFTablesConn) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called()
	queued := m.pending
	m.pending = nil
	if err := args.Error(0); err != nil {
		return err
	}
	for _, apply := range queued {
		apply()
	}
	return nil
}

// Rules returns the committed rules of a kernel chain.
func (m *MockNFTablesConn) Rules(table, chain string) []*nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules[ruleKey(table, chain)]
}

// ChainNames returns the committed chains of a kernel table in creation order.
func (m *MockNFTablesConn) ChainNames(table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, c := range m.chains[table] {
		names = append(names, c.Name)
	}
	return names
}
