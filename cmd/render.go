package cmd

import (
	"fmt"

	"grimm.is/zonefwd/internal/firewall"
	"grimm.is/zonefwd/internal/logging"
	"grimm.is/zonefwd/internal/model"
	"grimm.is/zonefwd/internal/network"
	"grimm.is/zonefwd/internal/pfctl"
)

// Render synthesizes the full ruleset for m into an in-memory backend and
// returns it in iptables-save form. Each network takes its address from
// addrs.
func Render(m *model.Model, addrs []network.Address, logger *logging.Logger) (string, error) {
	for _, n := range m.Networks() {
		n.Addr = network.Lookup(addrs, n.Ifname)
	}
	mem := pfctl.NewMemBackend()
	if err := firewall.New(mem, logger, nil).Rebuild(m, firewall.NewState()); err != nil {
		return "", fmt.Errorf("render ruleset: %w", err)
	}
	logger.Debug("ruleset rendered",
		"filter_entries", mem.Snapshot(pfctl.TableFilter).EntryCount(),
		"nat_entries", mem.Snapshot(pfctl.TableNAT).EntryCount())
	return mem.Dump(), nil
}

// liveAddresses polls the addresses in netns. Without netlink access the
// ruleset is rendered with every network down.
func liveAddresses(netns string, logger *logging.Logger) []network.Address {
	nl, err := network.OpenNetlinker(netns)
	if err != nil {
		logger.Warn("cannot read interface addresses, rendering with all networks down", "error", err)
		return nil
	}
	defer nl.Close()

	addrs, err := network.NewResolver(nl, logger).Resolve(network.FamilyV4)
	if err != nil {
		logger.Warn("address poll failed, rendering with all networks down", "error", err)
		return nil
	}
	return addrs
}
