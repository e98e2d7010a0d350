// Package firewall synthesizes packet-filter entries from the rule model.
//
// # Chains
//
// [Synthesizer.BuildDefaults] lays out a fixed skeleton of container chains
// and wires them into the built-in chains:
//
//	filter INPUT    invalid, established, lo, syn_flood, rules, policies
//	filter FORWARD  invalid, established, mssfix, forward_rules, redirects, zones, forwardings
//	filter OUTPUT   invalid, established, lo, policies
//	nat PREROUTING  redirects
//	nat POSTROUTING zonemasq, loopback
//
// Verdicts go through the terminal chains handle_accept, handle_drop and
// handle_reject.
//
// # Per-network entries
//
// [Synthesizer.AddInterface] appends the entries that depend on one
// network's address to the container chains. Each entry carries a comment
// of the form
//
//	<tag>:net=<network> zone=<zone>
//
// and is recorded in the [State] side table, so [Synthesizer.RemoveInterface]
// deletes exactly what was added. The comment sweep that follows the exact
// deletion keeps removal correct for entries the side table does not know.
//
// Entries that join two networks (intra-zone forwarding, forwardings,
// rules with a destination zone) are emitted once both endpoints are
// installed, and are removed with either endpoint.
//
// Every operation edits staged copies of both tables and commits filter,
// then nat. A failed commit is wrapped in [ErrCommit].
package firewall
